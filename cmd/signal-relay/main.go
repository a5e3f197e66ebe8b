// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/signal-relay/lib/clock"
	"github.com/bureau-foundation/signal-relay/lib/config"
	"github.com/bureau-foundation/signal-relay/lib/inbox"
	"github.com/bureau-foundation/signal-relay/lib/install"
	"github.com/bureau-foundation/signal-relay/lib/netutil"
	"github.com/bureau-foundation/signal-relay/lib/outbox"
	"github.com/bureau-foundation/signal-relay/lib/process"
	"github.com/bureau-foundation/signal-relay/lib/relay"
	"github.com/bureau-foundation/signal-relay/lib/release"
	"github.com/bureau-foundation/signal-relay/lib/signalcli"
	"github.com/bureau-foundation/signal-relay/lib/version"
	"github.com/bureau-foundation/signal-relay/lib/watch"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	logLevel    string
	once        bool
	status      bool
	showVersion bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("signal-relay", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&opts.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	flagSet.BoolVar(&opts.once, "once", false, "run a single flush and receive cycle, then exit")
	flagSet.BoolVar(&opts.status, "status", false, "print queued and failed outbox entries, then exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	if opts.once && opts.status {
		return opts, errors.New("--once and --status are mutually exclusive")
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "signal-relay %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	clk := clock.Real()
	if opts.status {
		return printStatus(stdout, cfg, clk.Now())
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := build(cfg, signalcli.ExecRunner{}, http.DefaultClient, clk, logger)
	if err != nil {
		return err
	}

	if opts.once {
		if _, err := components.installer.Recover(); err != nil {
			return fmt.Errorf("recovering interrupted update: %w", err)
		}
		_, err := components.relay.RunOnce(ctx)
		return err
	}

	if cfg.Relay.Watch {
		wake, err := watch.Watch(ctx, cfg.OutboxDir(), logger)
		if err != nil {
			logger.Warn("outbox watcher unavailable, polling on interval only", "error", err)
		} else {
			components.relay = components.withWake(wake)
		}
	}

	logger.Info("signal relay running",
		"version", version.Short(),
		"account", cfg.Account,
		"messages", cfg.Paths.Messages,
		"install_root", cfg.Paths.InstallRoot,
		"poll_interval", cfg.Relay.PollInterval.Std(),
		"watch", cfg.Relay.Watch,
	)
	err = components.relay.Run(ctx)
	logger.Info("shutting down")
	return err
}

// loadConfig loads --config, or the file named by the environment, and
// validates it after applying flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// daemon is the wired component graph.
type daemon struct {
	installer *install.Installer
	client    *signalcli.Client
	outbox    *outbox.Scanner
	inbox     *inbox.Writer
	relay     *relay.Relay

	relayConfig relay.Config
	clock       clock.Clock
	logger      *slog.Logger
}

// build wires the components for cfg and creates the queue directories.
func build(cfg *config.Config, runner signalcli.Runner, httpClient *http.Client, clk clock.Clock, logger *slog.Logger) (*daemon, error) {
	for _, directory := range []string{cfg.OutboxDir(), cfg.InboxDir(), cfg.DeadLetterDir(), cfg.Paths.State} {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", directory, err)
		}
	}

	userAgent := cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	fetcher := &netutil.Fetcher{Client: httpClient, UserAgent: userAgent}

	installer := install.New(install.Config{
		InstallRoot: cfg.Paths.InstallRoot,
		StateDir:    cfg.Paths.State,
		Product:     cfg.Client.Product,
		JarPrefix:   cfg.Library.JarPrefix,
		Member:      cfg.Library.Member,
		Client: &release.Checker{
			Name:        "client",
			MetadataURL: cfg.Client.MetadataURL,
			RecordPath:  filepath.Join(cfg.Paths.State, "client.version"),
			Parse:       release.ClientTag,
			Fetcher:     fetcher,
			Timeout:     cfg.HTTP.MetadataTimeout.Std(),
			Logger:      logger,
		},
		Library: &release.Checker{
			Name:        "library",
			MetadataURL: cfg.Library.MetadataURL,
			RecordPath:  filepath.Join(cfg.Paths.State, "library.version"),
			Parse:       release.LibraryTag,
			Fetcher:     fetcher,
			Timeout:     cfg.HTTP.MetadataTimeout.Std(),
			Logger:      logger,
		},
		ClientBundle:    cfg.Client.DownloadURL,
		LibraryBundle:   cfg.Library.DownloadURL,
		Fetcher:         fetcher,
		RecheckInterval: cfg.Client.RecheckInterval.Std(),
		Clock:           clk,
		Logger:          logger,
	})

	client := signalcli.New(signalcli.Config{
		ConfigDir:            cfg.Paths.ClientConfig,
		Account:              cfg.Account,
		JSONOutput:           cfg.Client.JSONOutput,
		AttachmentAttempts:   cfg.Client.AttachmentAttempts,
		AttachmentRetryDelay: cfg.Client.AttachmentRetryDelay.Std(),
		FailureNotice:        cfg.Client.AttachmentFailureNotice,
	}, installer, runner, clk, logger)

	scanner := outbox.New(cfg.OutboxDir(), cfg.DeadLetterDir(), client, clk, logger)
	writer := inbox.New(cfg.InboxDir(), client, clk, logger)

	relayConfig := relay.Config{
		OutboxRoot:                cfg.OutboxDir(),
		PollInterval:              cfg.Relay.PollInterval.Std(),
		StaleLockAge:              cfg.Relay.StaleLockAge.Std(),
		SweepInterval:             cfg.Relay.SweepInterval.Std(),
		MaxConsecutiveEscalations: cfg.Relay.MaxConsecutiveEscalations,
	}

	d := &daemon{
		installer:   installer,
		client:      client,
		outbox:      scanner,
		inbox:       writer,
		relayConfig: relayConfig,
		clock:       clk,
		logger:      logger,
	}
	d.relay = d.withWake(nil)
	return d, nil
}

// withWake returns a Relay over the daemon's components that also
// cycles when wake fires.
func (d *daemon) withWake(wake <-chan struct{}) *relay.Relay {
	relayConfig := d.relayConfig
	relayConfig.Wake = wake
	return relay.New(relayConfig, d.outbox, d.inbox, d.installer, d.clock, d.logger)
}
