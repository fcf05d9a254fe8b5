package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

var paramsCmd = &cobra.Command{
	Use:   "params <path>",
	Short: "Parse a command path and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runParams,
}

func init() {
	rootCmd.AddCommand(paramsCmd)
}

func runParams(_ *cobra.Command, args []string) error {
	cmd, err := pixelpath.Parse(strings.TrimPrefix(args[0], "/"))
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}

	out, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
