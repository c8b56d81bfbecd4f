package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/logging"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the merged configuration (defaults, file, COURIER_* environment and
flags). Key material and other secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	cmd.Flags().Bool("path", false, "only print the config file in use")
	return cmd
}

func runConfig(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	pathOnly, _ := cmd.Flags().GetBool("path")
	out := cmd.OutOrStdout()

	used := rt.Loader.ConfigFileUsed()
	if pathOnly {
		if used == "" {
			fmt.Fprintln(out, "(no config file, using defaults)")
			return nil
		}
		fmt.Fprintln(out, used)
		return nil
	}

	settings := logging.RedactMap(rt.Loader.AllSettings())
	if jsonOutput {
		payload, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode config: %v", err)
		}
		fmt.Fprintln(out, string(payload))
		return nil
	}

	payload, err := yaml.Marshal(settings)
	if err != nil {
		return Exitf(ExitCodeFailure, "encode config: %v", err)
	}
	if used != "" {
		fmt.Fprintf(out, "# %s\n", used)
	}
	_, err = out.Write(payload)
	return err
}
