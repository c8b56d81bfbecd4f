package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/chat"
	"github.com/tOgg1/courier/internal/models"
)

// StreamConfig configures conversation streaming.
type StreamConfig struct {
	// JSON writes one JSON object per message (JSONL).
	JSON bool

	// MarkSeen keeps the conversation visible so incoming messages are
	// marked seen as they arrive.
	MarkSeen bool

	// Tail limits how many existing messages are printed first. Negative
	// means all of them.
	Tail int

	// Local is the acting identity.
	Local string

	// Location renders times and date headers.
	Location *time.Location
}

// MessageStreamer prints conversation updates as they arrive.
type MessageStreamer struct {
	out     io.Writer
	config  StreamConfig
	printed map[string]struct{}
	lastDay string
}

// NewMessageStreamer creates a streamer writing to out.
func NewMessageStreamer(out io.Writer, config StreamConfig) *MessageStreamer {
	if config.Location == nil {
		config.Location = time.Local
	}
	return &MessageStreamer{
		out:     out,
		config:  config,
		printed: make(map[string]struct{}),
	}
}

// Stream consumes updates from conv until ctx is cancelled or the stream
// fails. Returns nil on graceful shutdown.
func (s *MessageStreamer) Stream(ctx context.Context, conv *chat.Conversation) error {
	if s.config.MarkSeen {
		conv.SetVisible(true)
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-conv.Updates():
			if !ok {
				return nil
			}
			if update.Err != nil {
				return update.Err
			}
			if err := s.write(update.View.Messages(), first); err != nil {
				return err
			}
			first = false
		}
	}
}

func (s *MessageStreamer) write(messages []models.Message, initial bool) error {
	fresh := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if _, done := s.printed[m.ID]; done {
			continue
		}
		s.printed[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if initial && s.config.Tail >= 0 && len(fresh) > s.config.Tail {
		fresh = fresh[len(fresh)-s.config.Tail:]
	}

	for _, m := range fresh {
		if s.config.JSON {
			payload, err := json.Marshal(toMessageOutput(m, s.config.Location))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(s.out, string(payload)); err != nil {
				return err
			}
			continue
		}
		day := m.Time().In(s.config.Location).Format(models.DateLayout)
		if day != s.lastDay {
			writeDateHeader(s.out, day)
			s.lastDay = day
		}
		writeMessageLine(s.out, m, s.config.Local, s.config.Location)
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch [counterpart]",
		Aliases: []string{"follow"},
		Short:   "Follow a conversation in real time",
		Long: `Print new messages with counterpart as they arrive until interrupted.
Incoming messages are marked seen while watching unless --no-seen is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
	cmd.Flags().Int("tail", 10, "existing messages to print first (-1 for all)")
	cmd.Flags().Bool("no-seen", false, "do not mark incoming messages as seen")
	cmd.Flags().Duration("timeout", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().Bool("json", false, "output messages as JSON lines")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	tail, _ := cmd.Flags().GetInt("tail")
	noSeen, _ := cmd.Flags().GetBool("no-seen")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")

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

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	w, err := rt.Wire(ctx, true)
	if err != nil {
		return err
	}
	defer closeWire(cmd, w)

	conv, err := w.Chat.Open(ctx, counterpart)
	if err != nil {
		return Exitf(ExitCodeFailure, "open conversation: %v", err)
	}
	defer conv.Close()
	rt.remember(counterpart)

	streamer := NewMessageStreamer(cmd.OutOrStdout(), StreamConfig{
		JSON:     jsonOutput,
		MarkSeen: !noSeen,
		Tail:     tail,
		Local:    rt.Identity,
		Location: loc,
	})
	if err := streamer.Stream(ctx, conv); err != nil {
		var streamErr *chat.StreamError
		if errors.As(err, &streamErr) {
			return Exitf(ExitCodeFailure, "conversation stream failed: %v", streamErr.Err)
		}
		return Exitf(ExitCodeFailure, "watch: %v", err)
	}
	return nil
}
