package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a bearer token",
	Long: `Log in with email and password and print the resulting token.

Export it for subsequent commands:

    export HANGAR_TOKEN=$(hangarctl login --email you@example.com)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginEmail == "" {
			return fmt.Errorf("--email is required")
		}

		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		client := newClient()
		var resp tokenResponse
		err = client.postJSON("/api/auth/login", map[string]string{
			"email":    loginEmail,
			"password": string(pw),
		}, &resp)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		// Token goes to stdout alone so it can be captured by shell substitution.
		fmt.Println(resp.AccessToken)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
}
