// Package cmd implements the command-line interface for lunarchive.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lunarchive/lunarchive/cmd/serve"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "lunarchive",
		Short: "Livestream archival job tracker",
		Long: `Tracks long-running media-archival jobs, monitors channel feeds for
content matching configured rules, and schedules downloads through an
external archiver engine.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to viper.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lunarchive version %s\n", "0.1.0")
		},
	})

	rootCmd.AddCommand(serve.Command(&cfgFile))
}
