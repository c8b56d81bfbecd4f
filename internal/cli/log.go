package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/models"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "log [counterpart]",
		Aliases: []string{"logs", "history"},
		Short:   "Print a conversation",
		Long: `Print the decrypted conversation with counterpart, grouped by date.
Reading does not mark messages as seen unless --mark-seen is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLog,
	}
	cmd.Flags().IntP("limit", "n", 0, "show only the last N messages")
	cmd.Flags().Bool("mark-seen", false, "mark messages addressed to you as seen")
	cmd.Flags().Bool("json", false, "output messages as JSON")
	return cmd
}

func runLog(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	markSeen, _ := cmd.Flags().GetBool("mark-seen")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if limit < 0 {
		return usageError(cmd, "--limit must not be negative")
	}

	if rt.Identity == "" {
		return Exitf(ExitCodeFailure, "no identity selected (use --as, identity.id or `courier use`)")
	}
	counterpart, err := rt.Counterpart(cmd, args)
	if err != nil {
		return err
	}
	loc, err := rt.Config.Location()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}

	ctx := commandContext(cmd)
	w, err := rt.Wire(ctx, true)
	if err != nil {
		return err
	}
	defer closeWire(cmd, w)

	view, err := w.Chat.History(ctx, counterpart)
	if err != nil {
		return Exitf(ExitCodeFailure, "read conversation: %v", err)
	}
	rt.remember(counterpart)

	if markSeen {
		updated, err := w.Tracker.MarkSeen(ctx, view.ConversationID, rt.Identity)
		if err != nil {
			return Exitf(ExitCodeFailure, "mark seen: %v", err)
		}
		if len(updated) > 0 {
			view = markViewSeen(view, updated)
			fmt.Fprintf(cmd.ErrOrStderr(), "marked %d message(s) seen\n", len(updated))
		}
	}

	messages := view.Messages()
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
		view = models.BuildView(view.ConversationID, messages, loc)
	}

	if jsonOutput {
		out := make([]messageOutput, 0, len(messages))
		for _, m := range messages {
			out = append(out, toMessageOutput(m, loc))
		}
		payload, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode messages: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	if len(messages) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no messages with %s yet\n", counterpart)
		return nil
	}
	writeView(cmd.OutOrStdout(), view, rt.Identity, loc)
	return nil
}

// markViewSeen returns view with the given message ids flagged seen.
func markViewSeen(view models.ConversationView, ids []string) models.ConversationView {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	items := make([]models.Item, len(view.Items))
	for i, item := range view.Items {
		if mi, ok := item.(models.MessageItem); ok {
			if _, hit := seen[mi.Message.ID]; hit {
				mi.Message.Seen = true
				mi.Message.Delivered = true
				item = mi
			}
		}
		items[i] = item
	}
	view.Items = items
	return view
}
