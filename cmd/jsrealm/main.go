package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/app"
	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsrealm/internal/logging"
	"github.com/GriffinCanCode/jsrealm/realm"
	"github.com/GriffinCanCode/jsrealm/realm/scope"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

// options are the flags shared by every command.
type options struct {
	profile             string
	sloppy              bool
	configurableGlobals bool
	writes              string
	logLevel            string
	dev                 bool
	json                bool
	metrics             bool
	trace               bool
	rate                float64
	timeout             time.Duration
	endow               []string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "jsrealm",
		Short:         "Evaluate untrusted JavaScript in confined contexts",
		Long:          "jsrealm runs JavaScript source inside a sandbox context: a fresh global whose free variables are mediated by a scope interposer, with the engine's eval and Function replaced by confined versions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = buildVersion()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.profile, "profile", "", "Profile file (.yaml, .toml or .json) overlaying the environment configuration")
	flags.BoolVar(&opts.sloppy, "sloppy", false, "Resolve every free variable through the sandbox global")
	flags.BoolVar(&opts.configurableGlobals, "configurable-globals", false, "Leave shared globals writable and configurable")
	flags.StringVar(&opts.writes, "writes", "", "Endowment write policy: explicit, local or rejected")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.dev, "dev", false, "Human readable development logging")
	flags.BoolVar(&opts.json, "json", false, "Print results as JSON")
	flags.BoolVar(&opts.metrics, "metrics", false, "Print evaluation metrics to stderr when done")
	flags.BoolVar(&opts.trace, "trace", false, "Log a span for every evaluation")
	flags.Float64Var(&opts.rate, "rate", 0, "Maximum evaluations per second (0 for no limit)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Interrupt evaluation after this long (0 for no limit)")
	flags.StringArrayVar(&opts.endow, "endow", nil, "Endowment name=value; values are parsed as JSON, else taken as strings")

	rootCmd.AddCommand(evalCmd(&opts))
	rootCmd.AddCommand(runCmd(&opts))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jsrealm: %v\n", err)
		os.Exit(1)
	}
}

func evalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "eval <source>...",
		Short:   "Evaluate source given on the command line",
		Example: "  jsrealm eval '1 + 1'\n  jsrealm eval --endow n=20 'n * 2 + 2'",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, opts, []string{strings.Join(args, " ")})
		},
	}
}

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "run <file|glob>...",
		Short:   "Evaluate files in order in one root context",
		Example: "  jsrealm run setup.js main.js\n  jsrealm run 'lib/**/*.js' main.js\n  jsrealm run --profile sandbox.yaml script.js",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			sources := make([]string, 0, len(paths))
			for _, path := range paths {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				sources = append(sources, string(data))
			}
			return execute(cmd, opts, sources)
		},
	}
}

// expandPaths replaces glob arguments with their sorted matches. Plain
// paths are kept as given so a missing file is reported when read.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			paths = append(paths, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", arg)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion())
		},
	}
}

// loadConfig reads the environment, overlays the profile and then any flag
// the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.profile != "" {
		if err := config.LoadProfile(opts.profile, cfg); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("sloppy") {
		cfg.Sandbox.SloppyGlobals = opts.sloppy
	}
	if flags.Changed("configurable-globals") {
		cfg.Sandbox.ConfigurableGlobals = opts.configurableGlobals
	}
	if flags.Changed("writes") {
		cfg.Sandbox.EndowmentWrites = opts.writes
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = opts.dev
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
	}
	if opts.trace {
		cfg.Tracing.Enabled = true
	}
	if flags.Changed("rate") {
		cfg.Limit.PerSecond = opts.rate
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, opts *options, sources []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	manager, err := app.NewManager(cfg, logger.Logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Shutdown() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := manager.Spawn(ctx, "", realm.KindRoot)
	if err != nil {
		return err
	}

	endowments, err := parseEndowments(root, opts.endow)
	if err != nil {
		return err
	}

	var result goja.Value
	for i, src := range sources {
		evalCtx, cancel := withTimeout(ctx, opts.timeout)
		result, err = manager.Evaluate(evalCtx, root.ID().String(), src, endowments)
		cancel()
		if err != nil {
			logger.Debug("evaluation failed", zap.Int("source", i), zap.Error(err))
			return err
		}
	}

	renderCtx, cancel := withTimeout(ctx, opts.timeout)
	text, err := render(renderCtx, root, result, opts.json)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	if opts.metrics {
		data, err := sonic.Marshal(manager.Stats())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), string(data))
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// parseEndowments turns name=value flags into read-only endowments.
func parseEndowments(root *realm.Context, flags []string) (scope.Endowments, error) {
	values := make(map[string]any, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid endowment %q, want name=value", f)
		}
		var v any
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			v = raw
		}
		values[name] = v
	}
	return root.Endow(values), nil
}

// render turns an evaluation result into output text inside the sandbox,
// so confined toString and toJSON code runs under the same lock, error
// boundary and timeout as the evaluation itself.
func render(ctx context.Context, root *realm.Context, v goja.Value, asJSON bool) (string, error) {
	if v == nil {
		v = goja.Undefined()
	}
	src := "String(result)"
	if asJSON {
		src = "JSON.stringify(result)"
	}
	out, err := root.EvaluateContext(ctx, src, scope.Endowments{"result": scope.Data(v)})
	if err != nil {
		return "", fmt.Errorf("failed to render result: %w", err)
	}

	if !asJSON {
		if !goja.IsString(out) {
			return "", errors.New("failed to render result: String did not return a string")
		}
		return out.String(), nil
	}

	var exported any
	if !goja.IsUndefined(out) {
		if !goja.IsString(out) {
			return "", errors.New("failed to render result: JSON.stringify did not return a string")
		}
		if err := sonic.UnmarshalString(out.String(), &exported); err != nil {
			return "", fmt.Errorf("failed to decode result: %w", err)
		}
	}
	data, err := sonic.Marshal(map[string]any{"result": exported})
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
