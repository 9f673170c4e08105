package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show resource usage stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := doRequest(http.MethodGet, "/v1/stats")
		if err != nil {
			return err
		}
		printJSON(body)
		return nil
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Manage orphaned remote sandboxes",
}

var orphansCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Force an immediate orphan-reconciliation cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := doRequest(http.MethodPost, "/v1/orphans/cleanup")
		if err != nil {
			return err
		}
		printJSON(body)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway health",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := doRequest(http.MethodGet, "/v1/health")
		if err != nil {
			return err
		}
		printJSON(body)
		return nil
	},
}

func init() {
	orphansCmd.AddCommand(orphansCleanupCmd)
}
