package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seamchat/seam/internal/timeline"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the recent timeline of a conversation",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().String("scope", "", "Conversation scope id")
	cmd.Flags().Int("pages", 1, "How many pages to fetch, newest first")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	scopeID, _ := cmd.Flags().GetString("scope")
	pages, _ := cmd.Flags().GetInt("pages")
	if pages < 1 {
		pages = 1
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store := timeline.NewStore()

	page, err := api.FetchPage(ctx, scopeID, cfg.Timeline.PageSize, time.Time{})
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if err := store.ReplaceAll(page.Items, page.HasMore); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	for i := 1; i < pages && store.HasMore(); i++ {
		older, err := api.FetchPage(ctx, scopeID, cfg.Timeline.PageSize, store.Cursor())
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		if _, err := store.AppendOlder(older.Items, cfg.Timeline.PageSize); err != nil {
			return fmt.Errorf("load history: %w", err)
		}
	}

	renderGroups(cmd.OutOrStdout(), store.DayGroups(cfg.Location()), store)
	if store.HasMore() {
		fmt.Fprintln(cmd.OutOrStdout(), "(older messages available)")
	}
	return nil
}
