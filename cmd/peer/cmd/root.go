package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomlink-peer",
	Short: "Join a mesh audio/video room",
	Long: `roomlink-peer joins a room on a signaling relay and opens a direct WebRTC
connection to every other member, streaming local media files to them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "configs/config.yaml", "path to the YAML config")
	rootCmd.AddCommand(joinCmd)
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
