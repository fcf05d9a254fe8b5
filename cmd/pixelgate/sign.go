package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonaylor89/pixelgate/internal/pixelpath"
)

var (
	signSecret   string
	signTruncate int
)

var signCmd = &cobra.Command{
	Use:   "sign <path>",
	Short: "Sign a command path with the shared secret",
	Long: `Signs everything after the signature segment, so pass the path without
a leading signature: "300x200/filters:quality(80)/img.jpg".`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "signing secret (defaults to PIXELGATE_SECRET)")
	signCmd.Flags().IntVar(&signTruncate, "truncate", 0, "shorten signatures to this many characters")
	rootCmd.AddCommand(signCmd)
}

func runSign(_ *cobra.Command, args []string) error {
	secret := signSecret
	if secret == "" {
		secret = os.Getenv("PIXELGATE_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("a signing secret is required, use --secret or PIXELGATE_SECRET")
	}

	path := strings.TrimPrefix(args[0], "/")
	if _, err := pixelpath.Parse(path); err != nil {
		return fmt.Errorf("parse path: %w", err)
	}

	signer := pixelpath.NewHMACSigner(secret, signTruncate)
	fmt.Printf("/%s/%s\n", signer.Sign(path), path)
	return nil
}
