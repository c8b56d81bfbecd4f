package cli

import (
	"fmt"
	"io"
)

// HintContext describes the command that just succeeded.
type HintContext struct {
	// Action is the command that was executed (e.g., "keygen", "register").
	Action string

	// Identity is the acting identity, if any.
	Identity string

	// Counterpart is the other participant, if any.
	Counterpart string
}

// PrintNextSteps prints follow-up commands for a successful action.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "keygen":
		return []string{
			"courier --as <you> register <username>   # publish your profile",
			"courier fingerprint                      # compare keys with your counterpart",
		}
	case "register":
		if ctx.Identity == "" {
			return nil
		}
		return []string{
			fmt.Sprintf("courier use %s                # act as %s by default", ctx.Identity, ctx.Identity),
			"courier inbox                      # list conversations",
		}
	case "use":
		if ctx.Counterpart == "" {
			return []string{"courier use --with <id>   # pick a default counterpart"}
		}
		return []string{
			"courier log     # read the conversation",
			"courier watch   # follow new messages",
		}
	default:
		return nil
	}
}
