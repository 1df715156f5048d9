package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"poker-hand-editor/app"
	"poker-hand-editor/pkg/config"
)

var (
	version = "dev"
	logFile string
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:     "poker-hand-editor",
	Short:   "A plain-text poker hand history editor",
	Long:    `Serves a browser editor for poker hand histories with bounded undo, per-session persistence and text file export/import.`,
	Version: version,
	RunE:    runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("host", "", "address to listen on")
	flags.StringP("port", "p", "8080", "port to listen on")
	flags.String("storage", config.DriverSQLite, "storage driver: memory, sqlite or postgres")
	flags.String("sqlite-path", "data/poker-hand-history.db", "sqlite database file")
	flags.String("static-dir", "", "directory with the browser UI to serve")
	flags.Int("max-history", 50, "number of undo snapshots kept per session")
	flags.IntP("verbosity", "v", 1, "log verbosity (0 quiet, higher is louder)")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")

	// Bind flags to viper; unset flags fall through to env and defaults.
	_ = v.BindPFlag("server_host", flags.Lookup("host"))
	_ = v.BindPFlag("server_port", flags.Lookup("port"))
	_ = v.BindPFlag("storage_driver", flags.Lookup("storage"))
	_ = v.BindPFlag("sqlite_path", flags.Lookup("sqlite-path"))
	_ = v.BindPFlag("static_dir", flags.Lookup("static-dir"))
	_ = v.BindPFlag("max_history_size", flags.Lookup("max-history"))
	_ = v.BindPFlag("log_verbosity", flags.Lookup("verbosity"))
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	if logFile != "" {
		commonlog.Configure(cfg.LogVerbosity, &logFile)
	} else {
		commonlog.Configure(cfg.LogVerbosity, nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := app.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing server: %v\n", err)
		}
	}()

	return server.Start(ctx, "")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
