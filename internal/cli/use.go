package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/models"
)

func newUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use [identity]",
		Short: "Set the default identity and counterpart",
		Long: `Save the identity to act as and, with --with, the counterpart that log,
watch and tui open when none is given. Without arguments the current
context is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runUse,
	}
	cmd.Flags().String("with", "", "default counterpart")
	cmd.Flags().Bool("clear", false, "forget the saved context")
	return cmd
}

func runUse(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	with, _ := cmd.Flags().GetString("with")
	clearCtx, _ := cmd.Flags().GetBool("clear")
	out := cmd.OutOrStdout()

	if clearCtx {
		if len(args) > 0 || cmd.Flags().Changed("with") {
			return usageError(cmd, "--clear cannot be combined with an identity or --with")
		}
		if err := rt.Contexts.Clear(); err != nil {
			return Exitf(ExitCodeFailure, "clear context: %v", err)
		}
		fmt.Fprintln(out, "context cleared")
		return nil
	}

	current := rt.Context
	if len(args) == 0 && !cmd.Flags().Changed("with") {
		if current.IsEmpty() {
			fmt.Fprintln(out, "no context set")
			return nil
		}
		fmt.Fprintln(out, current.String())
		return nil
	}

	if len(args) > 0 {
		identity := strings.TrimSpace(args[0])
		if err := models.ValidateIdentity(identity); err != nil {
			return Exitf(ExitCodeFailure, "invalid identity %q: %v", identity, err)
		}
		current.SetIdentity(identity)
	}
	if cmd.Flags().Changed("with") {
		counterpart := strings.TrimSpace(with)
		if counterpart != "" {
			if current.Identity == "" {
				return Exitf(ExitCodeFailure, "set an identity before a counterpart")
			}
			if err := models.ValidatePair(current.Identity, counterpart); err != nil {
				return Exitf(ExitCodeFailure, "invalid counterpart %q: %v", counterpart, err)
			}
		}
		current.SetCounterpart(counterpart)
	}

	if err := rt.Contexts.Save(current); err != nil {
		return Exitf(ExitCodeFailure, "save context: %v", err)
	}
	fmt.Fprintln(out, current.String())
	PrintNextSteps(out, HintContext{Action: "use", Identity: current.Identity, Counterpart: current.Counterpart})
	return nil
}
