package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BDNK1/wizflow/cli/internal/config"
	"github.com/BDNK1/wizflow/journeys"
	"github.com/BDNK1/wizflow/runtime"
	"github.com/BDNK1/wizflow/runtime/engine/yaml"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve [project-dir]",
	Short: "Run the wizard HTTP server",
	Long: `Serve reads wizard-config.yaml from the project directory, starts the
configured session store and reference data plugins, loads the journey
tables and serves them over HTTP until interrupted.

Without a config file the server uses the in-memory store and the built-in
journeys.

Example:
  wizflow serve .
  wizflow serve ./returns --port 9090
  WIZFLOW_CONFIG=staging.yaml wizflow serve ./returns
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP server port (overrides config and WIZFLOW_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	projectDir, err := projectDirFrom(args)
	if err != nil {
		return err
	}

	overrides, err := config.ParseEnv()
	if err != nil {
		return err
	}
	if servePort != "" {
		overrides.Port = servePort
	}

	cfg, err := config.Load(projectDir, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := newLogger(cfg.Runtime.LogLevel)
	if err != nil {
		return err
	}

	registry, static, err := loadJourneys(l, cfg.Runtime.JourneysDir)
	if err != nil {
		return fmt.Errorf("failed to load journeys: %w", err)
	}

	container, opts, err := buildContainer(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to build plugins: %w", err)
	}
	opts.Static = static
	opts.Properties = cfg.Properties
	opts.RateLimit = cfg.Runtime.RateLimit
	opts.RateBurst = cfg.Runtime.RateBurst

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := container.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize plugins: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := container.Shutdown(shutdownCtx); err != nil {
			l.Error("Plugin shutdown failed", "error", err)
		}
	}()

	app, err := runtime.NewApp(l, registry, container, opts)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	l.Info(fmt.Sprintf("Starting %s", cfg.Name),
		"store", cfg.Store.Type,
		"journeys_dir", cfg.Runtime.JourneysDir,
		"port", cfg.Runtime.Port)

	return app.ListenAndServe(ctx, ":"+cfg.Runtime.Port)
}

// loadJourneys loads tables from dir, or the built-in journeys when dir is
// empty.
func loadJourneys(l *slog.Logger, dir string) (*runtime.Registry, runtime.StaticLookup, error) {
	if dir == "" {
		return journeys.Load(l)
	}

	loader := yaml.NewLoader(l)
	registry, err := loader.LoadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	return registry, loader.StaticLookup(), nil
}

func projectDirFrom(args []string) (string, error) {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}

	info, err := os.Stat(absProjectDir)
	if err != nil {
		return "", fmt.Errorf("cannot access project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absProjectDir)
	}
	return absProjectDir, nil
}
