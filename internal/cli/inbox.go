package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/config"
	"github.com/tOgg1/courier/internal/inbox"
)

func newInboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inbox",
		Aliases: []string{"ls"},
		Short:   "List conversations with their last message",
		Long: `List every registered counterpart with a preview of the last message and
whether it is unread. Use --favorites or --search to narrow the list.`,
		Args: cobra.NoArgs,
		RunE: runInbox,
	}
	cmd.Flags().Bool("favorites", false, "only favorite counterparts")
	cmd.Flags().Bool("all", false, "every counterpart, ignoring inbox.default_filter")
	cmd.Flags().StringP("search", "s", "", "filter by display name (case-insensitive)")
	cmd.Flags().Bool("unread", false, "only conversations with unread messages")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

type entryOutput struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Preview       string `json:"preview"`
	Unread        bool   `json:"unread"`
	Favorite      bool   `json:"favorite"`
	LastTimestamp int64  `json:"last_timestamp,omitempty"`
}

func defaultFilter(cfg *config.Config) inbox.Filter {
	if cfg.Inbox.DefaultFilter == "favorites" {
		return inbox.Filter{Mode: inbox.FilterFavorites}
	}
	return inbox.Filter{Mode: inbox.FilterAll}
}

func runInbox(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	favorites, _ := cmd.Flags().GetBool("favorites")
	all, _ := cmd.Flags().GetBool("all")
	search, _ := cmd.Flags().GetString("search")
	unreadOnly, _ := cmd.Flags().GetBool("unread")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	filter := defaultFilter(rt.Config)
	switch {
	case favorites && cmd.Flags().Changed("search"):
		return usageError(cmd, "--favorites and --search are mutually exclusive")
	case favorites:
		filter = inbox.Filter{Mode: inbox.FilterFavorites}
	case cmd.Flags().Changed("search"):
		filter = inbox.Filter{Mode: inbox.FilterSearch, Query: search}
	case all:
		filter = inbox.Filter{Mode: inbox.FilterAll}
	}

	ctx := commandContext(cmd)
	w, err := rt.Wire(ctx, true)
	if err != nil {
		return err
	}
	defer closeWire(cmd, w)

	entries, err := loadInbox(ctx, w.NewInbox, filter, rt.Config.Inbox.SyncTimeout)
	if err != nil {
		return err
	}
	if unreadOnly {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Unread {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if jsonOutput {
		out := make([]entryOutput, 0, len(entries))
		for _, e := range entries {
			out = append(out, entryOutput{
				ID:            e.Profile.ID,
				DisplayName:   e.Profile.DisplayName(),
				Preview:       e.Preview,
				Unread:        e.Unread,
				Favorite:      e.Favorite,
				LastTimestamp: e.LastTimestamp,
			})
		}
		payload, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode inbox: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "inbox is empty (filter: %s)\n", filter.Mode)
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		unread := ""
		if e.Unread {
			unread = "*"
		}
		rows = append(rows, []string{
			unread,
			e.Profile.DisplayName(),
			e.Profile.ID,
			truncate(e.Preview, previewMaxWidth),
			formatYesNo(e.Favorite),
		})
	}
	return writeTable(cmd.OutOrStdout(), []string{"", "NAME", "ID", "LAST MESSAGE", "FAVORITE"}, rows)
}

// loadInbox starts an aggregator, waits for every subscription to report
// once and returns the filtered entries.
func loadInbox(ctx context.Context, open func() (*inbox.Aggregator, error), filter inbox.Filter, timeout time.Duration) ([]inbox.Entry, error) {
	agg, err := open()
	if err != nil {
		return nil, Exitf(ExitCodeFailure, "%v", err)
	}
	defer agg.Close()

	agg.SetFilter(filter)
	if err := agg.Start(ctx); err != nil {
		return nil, Exitf(ExitCodeFailure, "start inbox: %v", err)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := agg.WaitSynced(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Exitf(ExitCodeFailure, "inbox did not sync within %s", timeout)
		}
		return nil, Exitf(ExitCodeFailure, "sync inbox: %v", err)
	}
	return agg.Entries(), nil
}

func newFavoriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorite <counterpart>",
		Aliases: []string{"fav"},
		Short:   "Toggle a counterpart in your favorites",
		Args:    cobra.ExactArgs(1),
		RunE:    runFavorite,
	}
	return cmd
}

func runFavorite(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	if rt.Identity == "" {
		return Exitf(ExitCodeFailure, "no identity selected (use --as, identity.id or `courier use`)")
	}
	counterpart := strings.TrimSpace(args[0])

	ctx := commandContext(cmd)
	w, err := rt.Wire(ctx, true)
	if err != nil {
		return err
	}
	defer closeWire(cmd, w)

	agg, err := w.NewInbox()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	defer agg.Close()

	favorite, err := agg.ToggleFavorite(ctx, counterpart)
	if err != nil {
		return Exitf(ExitCodeFailure, "toggle favorite: %v", err)
	}
	if favorite {
		fmt.Fprintf(cmd.OutOrStdout(), "%s added to favorites\n", counterpart)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed from favorites\n", counterpart)
	}
	return nil
}
