package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	apiKey     string
)

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Administrative CLI for the microsandbox gateway",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", getEnvOrDefault("GATEWAYCTL_SERVER", "http://127.0.0.1:8088"), "gateway HTTP facade address")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("GATEWAYCTL_API_KEY"), "gateway API key, if the facade requires one")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(healthCmd)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
