// Package main is the entry point for the wanderdesk inbox client.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wanderdesk/wanderdesk/internal/config"
	"github.com/wanderdesk/wanderdesk/internal/inbox"
	"github.com/wanderdesk/wanderdesk/internal/inbox/api"
	"github.com/wanderdesk/wanderdesk/internal/inbox/transport"
	"github.com/wanderdesk/wanderdesk/internal/inboxtui"
	"github.com/wanderdesk/wanderdesk/internal/logging"
	"github.com/wanderdesk/wanderdesk/internal/statecache"
)

// Version information (set by goreleaser)
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		logLevel   string
		apiURL     string
		socketURL  string
		agencyID   string
		offline    bool
	)

	cmd := &cobra.Command{
		Use:           "wanderdesk",
		Short:         "Travel-agency inbox with live message sync",
		Long:          "wanderdesk opens the agency inbox: conversations, live push updates and optimistic sends reconciled into one consistent timeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
			if logLevel != "" {
				loader.Set("logging.level", logLevel)
			}
			if apiURL != "" {
				loader.Set("api.base_url", apiURL)
			}
			if socketURL != "" {
				loader.Set("socket.url", socketURL)
			}
			if agencyID != "" {
				loader.Set("agency.id", agencyID)
			}

			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, offline)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Config file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Messaging API base URL")
	cmd.Flags().StringVar(&socketURL, "socket-url", "", "Push channel websocket URL")
	cmd.Flags().StringVar(&agencyID, "agency", "", "Agency id")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the push channel and serve the cached snapshot")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, offline bool) error {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput(cfg),
	})
	logging.Info().
		Str("api", logging.Redact(cfg.API.BaseURL)).
		Str("agency", cfg.Agency.ID).
		Msg("starting wanderdesk")

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
	})
	if err != nil {
		return err
	}

	var channel inbox.PushChannel
	if !offline && cfg.Socket.URL != "" {
		channel = transport.Dial(transport.Config{
			URL:               cfg.Socket.URL,
			Token:             cfg.API.Token,
			ReconnectInterval: cfg.Socket.ReconnectInterval,
		})
	}

	var opts []inbox.SessionOption
	if cfg.Cache.Path != "" {
		cache, err := statecache.Open(cfg.Cache.Path)
		if err != nil {
			logging.Warn().Err(err).Msg("snapshot cache unavailable")
		} else {
			defer cache.Close()
			opts = append(opts, inbox.WithSnapshotCache(cache))
		}
	}

	session, err := inbox.NewSession(inbox.SessionConfig{
		AgencyID:     cfg.Agency.ID,
		SelfID:       cfg.Agency.SelfID,
		HistoryLimit: cfg.Agency.HistoryLimit,
	}, client, channel, opts...)
	if err != nil {
		return err
	}

	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close()

	return inboxtui.Run(inboxtui.Config{
		Session:  session,
		AgencyID: cfg.Agency.ID,
	})
}

func logOutput(cfg *config.Config) *os.File {
	if cfg.Logging.File == "" {
		return os.Stderr
	}
	file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr
	}
	return file
}
