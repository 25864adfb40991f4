package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	appsPlatform string
	appsSearch   string
	appsPage     int
	appsPageSize int
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage registered applications",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all applications across owners",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		q := url.Values{}
		if appsPlatform != "" {
			q.Set("platform", appsPlatform)
		}
		if appsSearch != "" {
			q.Set("search", appsSearch)
		}
		if appsPage > 0 {
			q.Set("page", strconv.Itoa(appsPage))
		}
		if appsPageSize > 0 {
			q.Set("page_size", strconv.Itoa(appsPageSize))
		}

		path := "/api/admin/apps"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var list adminAppList
		if err := client.getJSON(path, &list); err != nil {
			return fmt.Errorf("list apps: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(list)
		}

		rows := make([][]string, 0, len(list.Items))
		for _, app := range list.Items {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(app.ID), 10),
				truncate(app.Name, 30),
				truncate(app.BundleID, 40),
				app.Platform,
				strconv.FormatBool(app.IsPublic),
				app.OwnerUsername,
				strconv.FormatInt(app.VersionCount, 10),
				strconv.FormatInt(app.TotalDownloads, 10),
			})
		}
		printTable([]string{"id", "name", "bundle", "platform", "public", "owner", "versions", "downloads"}, rows)
		fmt.Printf("\n%d of %d apps\n", len(list.Items), list.Total)
		return nil
	},
}

var appsTogglePublicCmd = &cobra.Command{
	Use:   "toggle-public <app-id>",
	Short: "Flip an app between public and private",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var resp struct {
			IsPublic bool `json:"is_public"`
		}
		if err := client.patchJSON("/api/admin/apps/"+args[0]+"/toggle-public", nil, &resp); err != nil {
			return fmt.Errorf("toggle public: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(resp)
		}
		fmt.Printf("App %s is now public=%t\n", args[0], resp.IsPublic)
		return nil
	},
}

func init() {
	appsListCmd.Flags().StringVar(&appsPlatform, "platform", "", "Filter by platform (android, ios)")
	appsListCmd.Flags().StringVar(&appsSearch, "search", "", "Filter by name or bundle id substring")
	appsListCmd.Flags().IntVar(&appsPage, "page", 0, "Page number")
	appsListCmd.Flags().IntVar(&appsPageSize, "page-size", 0, "Items per page")

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsTogglePublicCmd)
}
