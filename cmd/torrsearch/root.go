package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"torrentstream/aggregator/internal/app"
	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/netclient"
	"torrentstream/aggregator/internal/providers/nyaa"
	"torrentstream/aggregator/internal/providers/piratebay"
	"torrentstream/aggregator/internal/providers/rutracker"
	"torrentstream/aggregator/internal/providers/x1337"
	"torrentstream/aggregator/internal/providers/yts"
	"torrentstream/aggregator/internal/settings"
)

// environment holds the collaborators every command needs; tests swap them.
type environment struct {
	loadConfig   func() (app.Config, error)
	providers    func(cfg app.Config) []domain.Provider
	client       func(cfg app.Config) domain.NetworkClient
	openSettings func(cfg app.Config) (settings.Store, func() error, error)
}

func defaultEnvironment() *environment {
	return &environment{
		loadConfig: app.LoadConfig,
		providers: func(cfg app.Config) []domain.Provider {
			return []domain.Provider{
				piratebay.NewProvider(piratebay.Config{Endpoint: cfg.PirateBayEndpoint}),
				x1337.NewProvider(x1337.Config{Endpoint: cfg.X1337Endpoint}),
				rutracker.NewProvider(rutracker.Config{Endpoint: cfg.RutrackerEndpoint, Cookie: cfg.RutrackerCookies}),
				yts.NewProvider(yts.Config{Endpoint: cfg.YTSEndpoint}),
				nyaa.NewProvider(nyaa.Config{Endpoint: cfg.NyaaEndpoint}),
			}
		},
		client: func(cfg app.Config) domain.NetworkClient {
			return netclient.New(netclient.Config{
				Timeout:   cfg.RequestTimeout,
				UserAgent: cfg.UserAgent,
				HostRPS:   cfg.HostRPS,
				HostBurst: 2,
			})
		},
		openSettings: openBoltSettings,
	}
}

func openBoltSettings(cfg app.Config) (settings.Store, func() error, error) {
	path := cfg.SettingsPath
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create settings directory: %w", err)
		}
	}
	store, err := settings.OpenBoltStore(path)
	if err != nil {
		return nil, nil, err
	}
	return settings.WithDefaultMaxResults(store, cfg.MaxResults), store.Close, nil
}

type logLevel slog.Level

func (l logLevel) String() string {
	return slog.Level(l).String()
}

func (l *logLevel) Set(s string) error {
	return (*slog.Level)(l).UnmarshalText([]byte(s))
}

func (l logLevel) Type() string {
	return "level"
}

func newLogger(w io.Writer, level logLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.Level(level)}))
}

func newRootCmd(env *environment) *cobra.Command {
	lvl := logLevel(slog.LevelWarn)
	var logger *slog.Logger

	rootCmd := &cobra.Command{
		Use:           "torrsearch",
		Short:         "Search torrent indexes from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(cmd.ErrOrStderr(), lvl)
			slog.SetDefault(logger)
		},
	}
	rootCmd.PersistentFlags().VarP(&lvl, "log-level", "l", "Specify log level")

	getLogger := func() *slog.Logger {
		if logger == nil {
			return slog.Default()
		}
		return logger
	}

	rootCmd.AddCommand(
		newSearchCmd(env, getLogger),
		newProvidersCmd(env, getLogger),
		newSettingsCmd(env),
		newCategoriesCmd(),
	)
	return rootCmd
}

func parseIDList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
