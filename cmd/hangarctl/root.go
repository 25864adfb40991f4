package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "hangarctl",
	Short: "CLI for the hangar build distribution server",
	Long: `hangarctl talks to a hangar server over its HTTP API.

Authenticated commands need a bearer token: run "hangarctl login" once
and export the printed token, or pass --token / set HANGAR_TOKEN.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Hangar server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (default: from HANGAR_TOKEN env)")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(statsCmd)
}

// resolvedToken returns the effective bearer token.
// Priority: --token flag > HANGAR_TOKEN env var.
func resolvedToken() string {
	if authToken != "" {
		return authToken
	}
	return os.Getenv("HANGAR_TOKEN")
}
