package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/qunitjs/qtap/bus"
	"github.com/qunitjs/qtap/config"
	"github.com/qunitjs/qtap/launcher"
	"github.com/qunitjs/qtap/launcher/fake"
	"github.com/qunitjs/qtap/launcher/process"
	"github.com/qunitjs/qtap/launcher/shared"
	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/orchestrator"
	"github.com/qunitjs/qtap/reporter/json"
	"github.com/qunitjs/qtap/reporter/minimal"
	"github.com/qunitjs/qtap/reporter/redisreporter"
	"github.com/qunitjs/qtap/reporter/tap"
	"github.com/qunitjs/qtap/reporter/tui"
	"github.com/qunitjs/qtap/reporter/webhook"
	"github.com/qunitjs/qtap/types"
)

// RunCommand is qtap's default action: resolve test inputs and browsers,
// launch every (input, browser) pair, and report the outcome.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run one or more test files or URLs in one or more browsers",
		ArgsUsage: "<file-or-url>...",
		Flags:     RunFlags(),
		Action:    RunAction,
	}
}

func RunAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("qtap: at least one test file or URL is required", 1)
	}

	runID := uuid.NewString()
	logger := log.NewLogger(runID)
	if c.Bool("verbose") || os.Getenv("QTAP_DEBUG") == "1" {
		logger = log.NewDebugLogger(runID)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := mergeConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("qtap: %v", err), 1)
	}

	inputs, err := resolveInputs(c.Args().Slice(), cfg.cwd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("qtap: %v", err), 1)
	}

	registry := buildRegistry(cfg.fileCfg)

	subscribers, closers, err := buildReporters(runID, cfg.reporters, cfg.fileCfg, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("qtap: %v", err), 1)
	}
	defer func() {
		for _, fn := range closers {
			fn()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchCfg := orchestrator.Config{
		Inputs:         inputs,
		Browsers:       cfg.browsers,
		ConnectTimeout: cfg.connectTimeout,
		IdleTimeout:    cfg.idleTimeout,
		Debug:          cfg.debug,
		Registry:       registry,
		Logger:         logger,
		Subscribers:    subscribers,
	}

	if !cfg.watch {
		finish, err := orchestrator.Run(ctx, orchCfg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("qtap: %v", err), 1)
		}
		return cli.Exit("", finish.ExitCode)
	}

	return watchLoop(ctx, orchCfg, inputs, logger)
}

// watchLoop re-runs the full pair set whenever any resolved file input's
// mtime changes. No file-watcher library appears
// anywhere in the retrieval pack, so this polls on a ticker rather than
// using inotify/fsnotify-style event delivery.
func watchLoop(ctx context.Context, cfg orchestrator.Config, inputs []types.TestInput, logger *log.Logger) error {
	mtimes := make(map[string]time.Time, len(inputs))
	for _, in := range inputs {
		if in.Kind != types.InputFile {
			continue
		}
		if fi, err := os.Stat(filepath.Join(in.ResolvedRoot, in.NormalizedDisplayPath)); err == nil {
			mtimes[in.Raw] = fi.ModTime()
		}
	}

	runOnce := func() int {
		finish, err := orchestrator.Run(ctx, cfg)
		if err != nil {
			logger.Error("watch run failed", map[string]any{"error": err.Error()})
			return 1
		}
		return finish.ExitCode
	}

	exitCode := runOnce()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return cli.Exit("", exitCode)
		case <-ticker.C:
			changed := false
			for _, in := range inputs {
				if in.Kind != types.InputFile {
					continue
				}
				fi, err := os.Stat(filepath.Join(in.ResolvedRoot, in.NormalizedDisplayPath))
				if err != nil {
					continue
				}
				if prev, ok := mtimes[in.Raw]; !ok || fi.ModTime().After(prev) {
					mtimes[in.Raw] = fi.ModTime()
					changed = true
				}
			}
			if changed {
				logger.Info("watch: re-running changed inputs", nil)
				exitCode = runOnce()
			}
		}
	}
}

type resolvedConfig struct {
	browsers       []string
	reporters      []string
	cwd            string
	connectTimeout time.Duration
	idleTimeout    time.Duration
	debug          bool
	watch          bool
	fileCfg        *config.Config
}

// mergeConfig loads an optional -c/--config file and overlays CLI flags
// on top; CLI flags always override config file values.
func mergeConfig(c *cli.Context) (*resolvedConfig, error) {
	var fileCfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	} else {
		fileCfg = &config.Config{}
	}

	rc := &resolvedConfig{fileCfg: fileCfg}

	rc.browsers = fileCfg.Browsers
	if c.IsSet("browser") || len(rc.browsers) == 0 {
		rc.browsers = c.StringSlice("browser")
	}

	rc.reporters = fileCfg.Reporters
	if c.IsSet("reporter") || len(rc.reporters) == 0 {
		rc.reporters = c.StringSlice("reporter")
	}

	rc.cwd = fileCfg.Cwd
	if c.IsSet("cwd") {
		rc.cwd = c.String("cwd")
	}
	if rc.cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine cwd: %w", err)
		}
		rc.cwd = wd
	}

	rc.connectTimeout = time.Duration(60 * float64(time.Second))
	if fileCfg.ConnectTimeout.Duration > 0 {
		rc.connectTimeout = fileCfg.ConnectTimeout.Duration
	}
	if c.IsSet("connect-timeout") {
		rc.connectTimeout = time.Duration(c.Float64("connect-timeout") * float64(time.Second))
	}

	rc.idleTimeout = time.Duration(5 * float64(time.Second))
	if fileCfg.Timeout.Duration > 0 {
		rc.idleTimeout = fileCfg.Timeout.Duration
	}
	if c.IsSet("timeout") {
		rc.idleTimeout = time.Duration(c.Float64("timeout") * float64(time.Second))
	}

	rc.debug = fileCfg.Debug || c.Bool("debug") || os.Getenv("QTAP_DEBUG") == "1"
	rc.watch = fileCfg.Watch || c.Bool("watch")

	return rc, nil
}

// resolveInputs classifies each positional argument as a file or URL
// input, per the startup resolution rule.
func resolveInputs(args []string, cwd string) ([]types.TestInput, error) {
	inputs := make([]types.TestInput, 0, len(args))
	for _, raw := range args {
		if types.IsAbsoluteURL(raw) {
			inputs = append(inputs, types.NewURLInput(raw))
			continue
		}

		abs := raw
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(cwd, raw)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("test file outside cwd or not found: %s", raw)
		}
		inputs = append(inputs, types.NewFileInput(raw, abs, cwd))
	}
	return inputs, nil
}

// buildRegistry wires up the launchers a complete qtap binary ships
// with: real headless Chrome/Firefox process launchers, the in-memory
// fake launcher, and any custom browsers named in the config file.
func buildRegistry(fileCfg *config.Config) *launcher.Registry {
	reg := launcher.NewRegistry("chrome-headless", "firefox-headless", "safari-webdriver", "fake")
	reg.Register(process.New(process.Chrome))
	reg.Register(process.New(process.Firefox))
	// Safari has no independent headless process per Client: every tab
	// shares the one long-lived safaridriver session, so it uses the
	// shared single-instance launcher instead of launcher/process.
	reg.Register(shared.New("safari-webdriver", []string{"safaridriver"}, []string{"--port", "0"}))
	reg.Register(fake.New())

	for name, cb := range fileCfg.CustomBrowsers {
		reg.Register(process.New(process.Binary{
			Name:       name,
			Candidates: []string{cb.Binary},
			Args:       cb.Args,
		}))
	}

	return reg
}

type closerFunc func()

// buildReporters constructs one Subscriber per requested reporter name
// and returns teardown callbacks for the ones that hold live resources
// (webhook's HTTP client, redis's connection, the TUI program).
func buildReporters(runID string, names []string, fileCfg *config.Config, logger *log.Logger) ([]bus.Subscriber, []closerFunc, error) {
	subs := make([]bus.Subscriber, 0, len(names))
	var closers []closerFunc

	for _, name := range names {
		switch name {
		case "minimal":
			subs = append(subs, minimal.New())
		case "tap":
			subs = append(subs, tap.New())
		case "json":
			subs = append(subs, json.New())
		case "tui":
			r := tui.New()
			subs = append(subs, r)
			closers = append(closers, func() { r.Quit(); r.Wait() })
		case "webhook":
			r, err := webhook.New(runID, webhook.Config{
				URL:     fileCfg.Adapters.Webhook.URL,
				Headers: fileCfg.Adapters.Webhook.Headers,
				Timeout: fileCfg.Adapters.Webhook.Timeout.Duration,
				Retries: retriesOrDefault(fileCfg.Adapters.Webhook.Retries),
			}, logger)
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, r)
			closers = append(closers, func() { _ = r.Close() })
		case "redis":
			r, err := redisreporter.New(runID, redisreporter.Config{
				Addr:    fileCfg.Adapters.Redis.Addr,
				Channel: fileCfg.Adapters.Redis.Channel,
			}, logger)
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, r)
			closers = append(closers, func() { _ = r.Close() })
		default:
			return nil, nil, errors.New("unknown reporter: " + name)
		}
	}

	return subs, closers, nil
}

func retriesOrDefault(r *int) int {
	if r == nil {
		return webhook.DefaultRetries
	}
	return *r
}
