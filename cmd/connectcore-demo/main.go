// Command connectcore-demo is a reference CLI wiring the connection core
// together.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/relayshell/connectcore/internal/config"
	"github.com/relayshell/connectcore/internal/progress"
	"github.com/relayshell/connectcore/pkg/connectcore"
)

var (
	configPath string
	credsPath  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "connectcore-demo",
	Short: "Demo CLI for the connection core",
	Long: `connectcore-demo discovers and connects to a paired daemon over
whichever transport is viable (LAN WebSocket, Tailscale UDP, or WebRTC),
then holds the connection open and reports health until interrupted.`,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Discover and connect to the paired daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConnect(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the credentials file that would be used",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := newFileRepository(credsPath)
		cred, err := repo.GetSelectedDevice(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("device: %s\n", cred.DeviceID)
		if cred.LANEndpoint != nil {
			fmt.Printf("lan:       %s:%d\n", cred.LANEndpoint.Host, cred.LANEndpoint.Port)
		}
		if cred.TailscaleEndpoint != nil {
			fmt.Printf("tailscale: %s:%d\n", cred.TailscaleEndpoint.Host, cred.TailscaleEndpoint.Port)
		}
		return nil
	},
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&configPath, "config",
		filepath.Join(home, ".config", "connectcore-demo", "config.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&credsPath, "credentials",
		filepath.Join(home, ".config", "connectcore-demo", "credentials.yaml"), "paired-device credentials file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
}

func runConnect(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(logLevel)

	repo := newFileRepository(credsPath)
	core := connectcore.New(cfg, repo, noopSignalling{}, nil, log)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Connect(ctx, func(ev progress.Event) {
		log.Info().Interface("event", ev).Msg("progress")
	}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.Info().Msg("connected")

	go core.Run(ctx)
	go func() {
		if err := core.ServeMetrics(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return core.Disconnect()
		case <-ticker.C:
			log.Info().Bool("connected", core.IsConnected()).Bool("healthy", core.IsHealthy()).Msg("status")
		}
	}
}

func newLogger(level string) zerolog.Logger {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(l).
		With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
