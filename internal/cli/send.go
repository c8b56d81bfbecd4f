package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/chat"
	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/logging"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <counterpart> [message]",
		Short: "Encrypt and send a message",
		Long: `Encrypt a message with the shared public key and append it to the
conversation with counterpart. The body is read from stdin when no message
argument is given.`,
		Example: `  courier --as alice send bob "see you at 5"
  echo "build is green" | courier send bob`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSend,
	}
	cmd.Flags().Bool("json", false, "output the sent message as JSON")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if rt.Identity == "" {
		return Exitf(ExitCodeFailure, "no identity selected (use --as, identity.id or `courier use`)")
	}
	counterpart, err := rt.Counterpart(cmd, args[:1])
	if err != nil {
		return err
	}

	body := ""
	if len(args) > 1 {
		body = args[1]
	} else {
		body, err = readStdinIfPiped(cmd.InOrStdin())
		if err != nil {
			return Exitf(ExitCodeFailure, "read stdin: %v", err)
		}
		body = strings.TrimRight(body, "\r\n")
	}
	if strings.TrimSpace(body) == "" {
		return usageError(cmd, "message body required (argument or stdin)")
	}

	ctx := commandContext(cmd)
	w, err := rt.Wire(ctx, true)
	if err != nil {
		return err
	}
	defer closeWire(cmd, w)

	msg, err := w.Chat.Send(ctx, counterpart, body)
	if err != nil {
		return sendFailure(err)
	}
	rt.remember(counterpart)

	loc, err := rt.Config.Location()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	if jsonOutput {
		payload, err := json.MarshalIndent(toMessageOutput(msg, loc), "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode message: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
	return nil
}

func sendFailure(err error) error {
	var encErr *crypto.EncryptionError
	var sendErr *chat.SendError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return Exitf(ExitCodeUsage, "message is empty")
	case errors.Is(err, chat.ErrMessageTooLarge), errors.Is(err, crypto.ErrPlaintextTooLarge):
		return Exitf(ExitCodeFailure, "message too large: %v", err)
	case errors.As(err, &encErr):
		return Exitf(ExitCodeFailure, "encrypt message: %v", encErr.Err)
	case errors.As(err, &sendErr):
		return Exitf(ExitCodeFailure, "send failed, message not stored: %v", sendErr.Err)
	default:
		return Exitf(ExitCodeFailure, "send: %v", err)
	}
}

// readStdinIfPiped reads all of in unless it is an interactive terminal.
func readStdinIfPiped(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// remember records counterpart as the last conversation partner when the
// saved context belongs to the acting identity.
func (rt *Runtime) remember(counterpart string) {
	if rt.Context == nil || rt.Context.Identity != rt.Identity || rt.Context.Counterpart == counterpart {
		return
	}
	rt.Context.SetCounterpart(counterpart)
	if err := rt.Contexts.Save(rt.Context); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Msg("save context")
	}
}
