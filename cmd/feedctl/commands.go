package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/glean-reader/feed-refresh-agent/refresh"
	"github.com/glean-reader/feed-refresh-agent/types"
)

// --- feeds ---

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage subscribed feeds",
}

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribed feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/feeds?page=%d&page_size=%d", page, pageSize)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var feedPage types.FeedPage
		if err := decodeJSON(resp, &feedPage); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(feedPage)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tERRORS\tURL")
		for _, feed := range feedPage.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", feed.ID, feed.Title, feed.Status, feed.ErrorCount, feed.URL)
		}
		w.Flush()

		fmt.Printf("page %d of %d feeds total\n", feedPage.Page, feedPage.TotalCount)
		return nil
	},
}

var feedsAddCmd = &cobra.Command{
	Use:   "add <url> [url...]",
	Short: "Subscribe to one or more feed URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/feeds/batch", map[string]any{"urls": args})
		if err != nil {
			return err
		}

		var result types.BatchCreateFeedsResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, created := range result.Created {
			printSuccess("Subscribed to %s", created.URL)
		}
		for _, skipped := range result.Skipped {
			printWarning("Already subscribed to %s", skipped)
		}
		for _, failure := range result.Errors {
			printWarning("Could not subscribe: %s", failure)
		}
		return nil
	},
}

var feedsDeleteCmd = &cobra.Command{
	Use:   "delete <feedId>",
	Short: "Unsubscribe from a feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/feeds/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Deleted feed %s", args[0])
		return nil
	},
}

var feedsResetCmd = &cobra.Command{
	Use:   "reset-error <feedId>",
	Short: "Clear a feed's accumulated error state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/feeds/"+args[0]+"/reset-error", nil)
		if err != nil {
			return err
		}

		var feed types.Feed
		if err := decodeJSON(resp, &feed); err != nil {
			return err
		}

		printSuccess("Reset error state for %s", feed.Title)
		return nil
	},
}

var feedsSetTitleCmd = &cobra.Command{
	Use:   "set-title <feedId> <title>",
	Short: "Rename a feed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		title := args[1]
		resp, err := client.patch(cmd.Context(), "/feeds/"+args[0], types.UpdateFeedRequest{Title: &title})
		if err != nil {
			return err
		}

		var feed types.Feed
		if err := decodeJSON(resp, &feed); err != nil {
			return err
		}

		printSuccess("Renamed feed to %s", feed.Title)
		return nil
	},
}

func init() {
	feedsListCmd.Flags().Int("page", 1, "page number")
	feedsListCmd.Flags().Int("page-size", 100, "feeds per page")
	feedsListCmd.Flags().Bool("json", false, "print raw JSON")

	feedsCmd.AddCommand(feedsListCmd)
	feedsCmd.AddCommand(feedsAddCmd)
	feedsCmd.AddCommand(feedsDeleteCmd)
	feedsCmd.AddCommand(feedsResetCmd)
	feedsCmd.AddCommand(feedsSetTitleCmd)
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh [feedId...]",
	Short: "Queue feed refreshes and optionally watch until they settle",
	Long: `Queue feed refreshes and optionally watch until they settle.

Examples:
  feedctl refresh --all
  feedctl refresh --errored --watch
  feedctl refresh feed-123
  feedctl refresh feed-123 feed-456 --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		errored, _ := cmd.Flags().GetBool("errored")
		watch, _ := cmd.Flags().GetBool("watch")

		if !all && !errored && len(args) == 0 {
			return fmt.Errorf("give feed ids, or use --all / --errored")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		switch {
		case all:
			resp, err := client.post(ctx, "/feeds/refresh/all", nil)
			if err != nil {
				return err
			}
			var result map[string]int
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued refresh for %d feeds", result["queued_count"])
		case errored:
			resp, err := client.post(ctx, "/feeds/refresh/errored", nil)
			if err != nil {
				return err
			}
			var result map[string]int
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued refresh for %d errored feeds", result["queued_count"])
		case len(args) == 1:
			resp, err := client.post(ctx, "/feeds/"+args[0]+"/refresh", nil)
			if err != nil {
				return err
			}
			var job refresh.Job
			if err := decodeJSON(resp, &job); err != nil {
				return err
			}
			printSuccess("Queued refresh for %s (job %s)", job.FeedID, job.JobID)
		default:
			resp, err := client.post(ctx, "/feeds/refresh/selected", map[string]any{"feed_ids": args})
			if err != nil {
				return err
			}
			var result struct {
				Submitted []string `json:"submitted"`
				Failed    []string `json:"failed"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Queued refresh for %d feeds", len(result.Submitted))
			for _, feedID := range result.Failed {
				printWarning("Could not queue %s", feedID)
			}
		}

		if watch {
			return watchJobs(ctx, client)
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().Bool("all", false, "refresh every feed")
	refreshCmd.Flags().Bool("errored", false, "refresh only feeds in error state")
	refreshCmd.Flags().Bool("watch", false, "poll tracked jobs until all settle")
}

// jobList mirrors the agent's GET /refresh/jobs response.
type jobList struct {
	Jobs    []refresh.Job `json:"jobs"`
	Polling bool          `json:"polling"`
}

// watchJobs polls the agent's job snapshot until no job is pending, then
// prints the per-feed outcome.
func watchJobs(ctx context.Context, client *apiClient) error {
	printStep("Watching refresh jobs...")

	for {
		resp, err := client.get(ctx, "/refresh/jobs")
		if err != nil {
			return err
		}
		var list jobList
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		pending := 0
		for _, job := range list.Jobs {
			if job.Pending() {
				pending++
			}
		}
		if pending == 0 {
			printJobOutcomes(list.Jobs)
			return nil
		}

		printStep("%d of %d jobs still pending", pending, len(list.Jobs))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func printJobOutcomes(jobs []refresh.Job) {
	for _, job := range jobs {
		name := job.FeedTitle
		if name == "" {
			name = job.FeedID
		}
		label := string(job.Status)
		if job.ResultStatus != "" {
			label = string(job.ResultStatus)
		}

		switch {
		case job.Status == types.JobComplete && job.ResultStatus == types.ResultSuccess:
			entries := 0
			if job.NewEntries != nil {
				entries = *job.NewEntries
			}
			printSuccess("%s: %s (%d new entries)", name, label, entries)
		case job.Status == types.JobComplete && job.ResultStatus == types.ResultNotModified:
			printSuccess("%s: not modified", name)
		default:
			msg := job.Message
			if msg == "" {
				msg = job.FetchErrorMessage
			}
			if msg != "" {
				printWarning("%s: %s (%s)", name, label, msg)
			} else {
				printWarning("%s: %s", name, label)
			}
		}
	}
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show tracked refresh jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if watch {
			return watchJobs(cmd.Context(), client)
		}

		resp, err := client.get(cmd.Context(), "/refresh/jobs")
		if err != nil {
			return err
		}
		var list jobList
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if len(list.Jobs) == 0 {
			fmt.Println("no refresh jobs tracked")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FEED\tSTATUS\tRESULT\tMESSAGE")
		for _, job := range list.Jobs {
			name := job.FeedTitle
			if name == "" {
				name = job.FeedID
			}
			status := colorize(statusColor(string(job.Status)), string(job.Status))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, status, job.ResultStatus, job.Message)
		}
		w.Flush()

		if list.Polling {
			printStep("poller active")
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().Bool("json", false, "print raw JSON")
	jobsCmd.Flags().Bool("watch", false, "poll until all jobs settle")
}

// --- preview ---

var previewCmd = &cobra.Command{
	Use:   "preview <url>",
	Short: "Fetch and inspect a feed URL without subscribing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/feeds/preview", map[string]any{"url": args[0]})
		if err != nil {
			return err
		}

		var preview struct {
			URL           string     `json:"url"`
			Title         string     `json:"title"`
			SiteURL       string     `json:"site_url"`
			Description   string     `json:"description"`
			Language      string     `json:"language"`
			ItemCount     int        `json:"item_count"`
			LatestEntryAt *time.Time `json:"latest_entry_at"`
		}
		if err := decodeJSON(resp, &preview); err != nil {
			return err
		}

		fmt.Printf("%s\n", colorize(colorBold, preview.Title))
		if preview.Description != "" {
			fmt.Printf("  %s\n", preview.Description)
		}
		fmt.Printf("  site: %s\n", preview.SiteURL)
		fmt.Printf("  items: %d\n", preview.ItemCount)
		if preview.LatestEntryAt != nil {
			fmt.Printf("  latest entry: %s\n", preview.LatestEntryAt.Format(time.RFC3339))
		}
		return nil
	},
}
