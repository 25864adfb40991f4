package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var status struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
			Uptime     string            `json:"uptime"`
		}
		if err := client.getJSON("/healthz", &status); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(status)
		}

		fmt.Printf("Status: %s\n", status.Status)
		fmt.Printf("Uptime: %s\n", status.Uptime)
		for name, state := range status.Components {
			fmt.Printf("  %s: %s\n", name, state)
		}
		return nil
	},
}
