// Package main implements the entry point for the PaddleOCR-VL web UI server,
// which queues uploaded documents for remote recognition and serves the
// resulting markdown.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/phrazzld/paddleocr-webui/internal/config"
	"github.com/phrazzld/paddleocr-webui/internal/platform/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliOptions holds the flags that are not config keys.
type cliOptions struct {
	configFile string
	envFiles   []string
}

func (o *cliOptions) load(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: o.configFile,
		EnvFiles:   o.envFiles,
		Flags:      flags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newRootCommand builds the CLI. Running it without a subcommand serves the UI.
func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := opts.load(cmd.Flags())
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:           "paddleocr-webui",
		Short:         "Local web UI for PaddleOCR-VL document recognition",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "optional YAML config file")
	pf.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load; missing files are ignored")
	pf.String("host", config.DefaultHost, "listen host")
	pf.Int("port", config.DefaultPort, "listen port")
	pf.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	pf.Int("concurrency", config.DefaultConcurrency, "number of files recognized in parallel")
	pf.String("output-root", config.DefaultOutputRoot, "directory that receives task outputs")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the web server (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	})
	return root
}

// printConfig writes cfg as indented JSON with the token masked.
func printConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	if masked.OCR.Token != "" {
		masked.OCR.Token = "***"
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(masked)
}

// runServer sets up logging, builds the application and serves until ctx is
// canceled or the process receives SIGINT/SIGTERM.
func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l, err := logger.Setup(logger.Config{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("Server configuration loaded",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"output_root", cfg.Storage.OutputRoot,
		"concurrency", cfg.Queue.Concurrency)
	l.Debug("OCR configuration",
		slog.Bool("api_url_present", cfg.OCR.APIURL != ""),
		slog.Bool("job_url_present", cfg.OCR.JobURL != ""),
		slog.Bool("token_present", cfg.OCR.Token != ""),
		slog.String("model", cfg.OCR.Model))

	app, err := newApplication(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
