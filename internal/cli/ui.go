package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/tui"
	"golang.org/x/term"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:     "tui [counterpart]",
		Aliases: []string{"ui"},
		Short:   "Open the interactive inbox and chat view",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runTUI,
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	if !hasTTY() {
		return Exitf(ExitCodeFailure, "the TUI requires an interactive terminal; use the log, send and inbox commands instead")
	}

	counterpart := ""
	if len(args) > 0 {
		counterpart, err = rt.Counterpart(cmd, args)
		if err != nil {
			return err
		}
	}

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

	loc, err := rt.Config.Location()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}

	err = tui.Run(ctx, tui.Options{
		Chat:           w.Chat,
		Inbox:          agg,
		Counterpart:    counterpart,
		Location:       loc,
		ShowTimestamps: rt.Config.TUI.ShowTimestamps,
		ShowStatus:     rt.Config.TUI.ShowStatus,
		Filter:         defaultFilter(rt.Config),
	})
	if err != nil {
		return Exitf(ExitCodeFailure, "tui: %v", err)
	}
	return nil
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
