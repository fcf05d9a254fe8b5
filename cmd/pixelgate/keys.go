package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

var keysStyle string

var keysCmd = &cobra.Command{
	Use:   "keys <path>",
	Short: "Print the result storage key for a command path",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeys,
}

func init() {
	keysCmd.Flags().StringVar(&keysStyle, "style", "digest", "key style: digest, suffix or size-suffix")
	rootCmd.AddCommand(keysCmd)
}

func runKeys(_ *cobra.Command, args []string) error {
	cmd, err := pixelpath.Parse(strings.TrimPrefix(args[0], "/"))
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}

	style := pixelpath.KeyStyle(keysStyle)
	switch style {
	case pixelpath.KeyStyleDigest, pixelpath.KeyStyleSuffix, pixelpath.KeyStyleSizeSuffix:
	default:
		return fmt.Errorf("unknown key style %q", keysStyle)
	}

	fmt.Println(pixelpath.ResultKey(cmd, style))
	return nil
}
