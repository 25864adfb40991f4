package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	usersSearch   string
	usersPage     int
	usersPageSize int

	setAdmin  string
	setActive string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		q := url.Values{}
		if usersSearch != "" {
			q.Set("search", usersSearch)
		}
		if usersPage > 0 {
			q.Set("page", strconv.Itoa(usersPage))
		}
		if usersPageSize > 0 {
			q.Set("page_size", strconv.Itoa(usersPageSize))
		}

		path := "/api/admin/users"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var list adminUserList
		if err := client.getJSON(path, &list); err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(list)
		}

		rows := make([][]string, 0, len(list.Items))
		for _, u := range list.Items {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(u.ID), 10),
				truncate(u.Email, 35),
				u.Username,
				strconv.FormatBool(u.IsAdmin),
				strconv.FormatBool(u.IsActive),
				strconv.FormatInt(u.AppCount, 10),
			})
		}
		printTable([]string{"id", "email", "username", "admin", "active", "apps"}, rows)
		fmt.Printf("\n%d of %d users\n", len(list.Items), list.Total)
		return nil
	},
}

var usersSetFlagsCmd = &cobra.Command{
	Use:   "set-flags <user-id>",
	Short: "Change a user's admin or active flag",
	Long: `Change account flags. Only the flags you pass are touched:

    hangarctl users set-flags 7 --admin=true
    hangarctl users set-flags 7 --active=false`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if setAdmin != "" {
			v, err := strconv.ParseBool(setAdmin)
			if err != nil {
				return fmt.Errorf("--admin must be true or false")
			}
			body["is_admin"] = v
		}
		if setActive != "" {
			v, err := strconv.ParseBool(setActive)
			if err != nil {
				return fmt.Errorf("--active must be true or false")
			}
			body["is_active"] = v
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to change: pass --admin and/or --active")
		}

		client := newClient()
		var u adminUser
		if err := client.patchJSON("/api/admin/users/"+args[0], body, &u); err != nil {
			return fmt.Errorf("set flags: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(u)
		}
		fmt.Printf("User %d (%s): admin=%t active=%t\n", u.ID, u.Email, u.IsAdmin, u.IsActive)
		return nil
	},
}

func init() {
	usersListCmd.Flags().StringVar(&usersSearch, "search", "", "Filter by email or username substring")
	usersListCmd.Flags().IntVar(&usersPage, "page", 0, "Page number")
	usersListCmd.Flags().IntVar(&usersPageSize, "page-size", 0, "Items per page")

	usersSetFlagsCmd.Flags().StringVar(&setAdmin, "admin", "", "Set admin flag (true/false)")
	usersSetFlagsCmd.Flags().StringVar(&setActive, "active", "", "Set active flag (true/false)")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersSetFlagsCmd)
}
