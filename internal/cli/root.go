// Package cli implements the courier command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/app"
	"github.com/tOgg1/courier/internal/config"
	"github.com/tOgg1/courier/internal/logging"
	"github.com/tOgg1/courier/internal/models"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

type globalOptions struct {
	configFile string
	as         string
	logLevel   string
	logFormat  string
}

// Runtime is the per-invocation state shared by every subcommand.
type Runtime struct {
	Config   *config.Config
	Loader   *config.Loader
	Contexts *config.ContextStore
	Identity string
	Context  *config.Context
}

type runtimeKey struct{}

func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "courier",
		Short:         "Encrypted direct messages between two identities",
		Long:          "courier sends, reads and tracks RSA-encrypted direct messages and aggregates them into an inbox.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/courier/config.yaml)")
	flags.StringVar(&opts.as, "as", "", "act as this identity")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (auto, console, json)")

	cmd.AddCommand(
		newKeygenCmd(),
		newFingerprintCmd(),
		newRegisterCmd(),
		newUseCmd(),
		newSendCmd(),
		newLogCmd(),
		newWatchCmd(),
		newInboxCmd(),
		newFavoriteCmd(),
		newConfigCmd(),
		newTUICmd(),
	)

	return cmd
}

func (o *globalOptions) setup(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if o.configFile != "" {
		loader.SetConfigFile(o.configFile)
	}
	if cmd.Flags().Changed("log-level") {
		loader.Set("logging.level", o.logLevel)
	}
	if cmd.Flags().Changed("log-format") {
		loader.Set("logging.format", o.logFormat)
	}

	cfg, err := loader.Load()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	if err := initLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return Exitf(ExitCodeFailure, "init logging: %v", err)
	}

	contexts := config.NewContextStore(contextPath(cfg))
	current, err := contexts.Load()
	if err != nil {
		return Exitf(ExitCodeFailure, "load context: %v", err)
	}

	identity := resolveIdentity(o.as, cfg, current)
	if identity != "" {
		if err := models.ValidateIdentity(identity); err != nil {
			return Exitf(ExitCodeFailure, "invalid identity %q: %v", identity, err)
		}
	}

	rt := &Runtime{
		Config:   cfg,
		Loader:   loader,
		Contexts: contexts,
		Identity: identity,
		Context:  current,
	}
	cmd.SetContext(context.WithValue(commandContext(cmd), runtimeKey{}, rt))
	return nil
}

// resolveIdentity picks the acting identity: --as, then identity.id, then
// the saved context.
func resolveIdentity(flag string, cfg *config.Config, current *config.Context) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	if cfg.Identity.ID != "" {
		return cfg.Identity.ID
	}
	if current != nil {
		return current.Identity
	}
	return ""
}

func contextPath(cfg *config.Config) string {
	if cfg.Global.ConfigDir == "" {
		return ""
	}
	return filepath.Join(cfg.Global.ConfigDir, "context.yaml")
}

func initLogging(cfg *config.Config, stderr io.Writer) error {
	out := stderr
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
	}

	tty := isTerminal(out)
	format := cfg.Logging.Format
	if format == "auto" {
		format = logging.FormatJSON
		if tty {
			format = logging.FormatConsole
		}
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       format,
		Output:       out,
		NoColor:      !tty,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// EnsureRuntime returns the runtime set up by the root command.
func EnsureRuntime(cmd *cobra.Command) (*Runtime, error) {
	rt, ok := commandContext(cmd).Value(runtimeKey{}).(*Runtime)
	if !ok || rt == nil {
		return nil, Exitf(ExitCodeFailure, "runtime unavailable")
	}
	return rt, nil
}

// Wire opens the store and services. requireIdentity fails early when no
// identity was selected.
func (rt *Runtime) Wire(ctx context.Context, requireIdentity bool) (*app.Wire, error) {
	if requireIdentity && rt.Identity == "" {
		return nil, Exitf(ExitCodeFailure, "%v", app.ErrNoIdentity)
	}
	if err := rt.Config.EnsureDirectories(); err != nil {
		return nil, Exitf(ExitCodeFailure, "%v", err)
	}
	w, err := app.NewWire(ctx, rt.Config, rt.Identity)
	if err != nil {
		return nil, Exitf(ExitCodeFailure, "open courier: %v", err)
	}
	return w, nil
}

// Counterpart resolves the counterpart from args[0] or the saved context.
func (rt *Runtime) Counterpart(cmd *cobra.Command, args []string) (string, error) {
	counterpart := ""
	if len(args) > 0 {
		counterpart = strings.TrimSpace(args[0])
	} else if rt.Context != nil && rt.Context.Identity == rt.Identity {
		counterpart = rt.Context.Counterpart
	}
	if counterpart == "" {
		return "", usageError(cmd, "counterpart required (pass it or run `courier use --with <id>`)")
	}
	if err := models.ValidatePair(rt.Identity, counterpart); err != nil {
		return "", Exitf(ExitCodeFailure, "invalid counterpart %q: %v", counterpart, err)
	}
	return counterpart, nil
}

func closeWire(cmd *cobra.Command, w *app.Wire) {
	if err := w.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
}
