package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal"
	"github.com/rm-hull/hideaway/internal/config"
	"github.com/rm-hull/hideaway/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"log-format":   "log_format",
	"catalog":      "catalog",
	"output-dir":   "profiles.output_dir",
	"policy":       "profiles.policy",
	"prefix":       "profiles.identifier_prefix",
	"organization": "profiles.organization",
	"supervised":   "profiles.supervised",
	"web":          "profiles.web_filter",
	"nanomdm-url":  "nanomdm.url",
}

type state struct {
	configFile string
	local      map[*cobra.Command]map[string]string
	app        *internal.App
}

// bind registers command-local flags that override configuration keys.
func (s *state) bind(cmd *cobra.Command, keys map[string]string) {
	s.local[cmd] = keys
}

// NewRootCommand builds the hideaway command tree. Output goes to stdout and
// logs to stderr unless overridden with SetOut/SetErr.
func NewRootCommand() *cobra.Command {
	s := &state{local: make(map[*cobra.Command]map[string]string)}

	root := &cobra.Command{
		Use:   "hideaway",
		Short: "Build, validate and deliver iPhone app-blocking profiles",
		Long: `
hideaway builds Apple configuration profiles (.mobileconfig) that block
distracting apps and their websites, validates them, and delivers them to
enrolled devices through a nanomdm server.

Options may be supplied in hideaway.yaml, a .env file, HIDEAWAY_*
environment variables or flags, in increasing order of precedence.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&s.configFile, "config", "", "path to a configuration file (default: search for hideaway.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", logging.TextFormat, "log format: text or json")
	flags.String("catalog", "", "path or URL of a YAML app catalog (default: built-in)")
	flags.String("output-dir", ".", "directory profiles are written to")
	flags.String("policy", "deny", "app policy: deny (block listed apps) or allow (only essential apps)")
	flags.String("prefix", "com.hideaway", "profile identifier prefix")
	flags.String("organization", "Hideaway", "organization shown on profiles")
	flags.Bool("supervised", false, "add supervised-only restrictions (app install/removal, Game Center)")
	flags.Bool("web", true, "also block the websites of blocked apps")
	flags.String("nanomdm-url", "http://localhost:9000", "base URL of the nanomdm API")

	root.AddCommand(
		newServeCommand(s),
		newGenerateCommand(s),
		newEnrollCommand(s),
		newBlockCommand(s),
		newUnblockCommand(s),
		newPingCommand(s),
		newValidateCommand(s),
		newCatalogCommand(s),
		newVersionCommand(),
	)
	return root
}

func (s *state) init(cmd *cobra.Command) error {
	bindings := make(map[string]*pflag.Flag, len(flagKeys))
	for name, key := range flagKeys {
		bindings[key] = cmd.Flags().Lookup(name)
	}
	for name, key := range s.local[cmd] {
		bindings[key] = cmd.Flags().Lookup(name)
	}

	cfg, err := config.Load(s.configFile, bindings)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	s.app = &internal.App{Config: cfg, Logger: logger}
	return nil
}

func (s *state) services(ctx context.Context, offline bool) (*internal.Services, error) {
	return s.app.NewServices(ctx, offline)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("hideaway failed", "error", err)
		return 1
	}
	return 0
}

func Main() {
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
