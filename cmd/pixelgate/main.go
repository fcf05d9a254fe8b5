package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "pixelgate",
	Short: "On-demand image transformation service",
	Long: `pixelgate serves transformed images straight from URL paths: crop,
resize, flip, pad and filter commands are encoded in the path itself,
verified with an HMAC signature, processed on demand and persisted
for the next hit.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pixelgate %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}
