package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/models"
)

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register [username]",
		Short: "Publish your profile to the directory",
		Long: `Write the acting identity's profile to the user directory so it shows up
in other people's inboxes. The username defaults to identity.username.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRegister,
	}
	cmd.Flags().String("avatar", "", "avatar URL")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

type profileOutput struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	DisplayName string `json:"display_name"`
}

func toProfileOutput(p models.Profile) profileOutput {
	return profileOutput{
		ID:          p.ID,
		Username:    p.Username,
		AvatarURL:   p.AvatarURL,
		DisplayName: p.DisplayName(),
	}
}

func runRegister(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	avatar, _ := cmd.Flags().GetString("avatar")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	username := rt.Config.Identity.Username
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
	}
	if username == "" {
		return usageError(cmd, "username required (pass it or set identity.username)")
	}

	ctx := commandContext(cmd)
	w, err := rt.Wire(ctx, true)
	if err != nil {
		return err
	}
	defer closeWire(cmd, w)

	profile, err := w.RegisterSelf(ctx, username, strings.TrimSpace(avatar))
	if err != nil {
		return Exitf(ExitCodeFailure, "register: %v", err)
	}

	if jsonOutput {
		payload, err := json.MarshalIndent(toProfileOutput(profile), "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode profile: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "registered %s as %s\n", profile.ID, profile.DisplayName())
	PrintNextSteps(out, HintContext{Action: "register", Identity: profile.ID})
	return nil
}
