package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/paddleocr-webui/internal/api"
	"github.com/phrazzld/paddleocr-webui/internal/config"
	"github.com/phrazzld/paddleocr-webui/internal/markdown"
	"github.com/phrazzld/paddleocr-webui/internal/platform/paddle"
	"github.com/phrazzld/paddleocr-webui/internal/storage"
	"github.com/phrazzld/paddleocr-webui/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	layout  storage.Layout
	gateway *paddle.Client
	queue   *task.Queue
	handler *api.TaskHandler
}

// newApplication creates a new application instance with all dependencies
// initialized. The job queue's workers are running when it returns.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.layout, err = storage.NewLayout(cfg.Storage.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare output root: %w", err)
	}

	app.gateway = paddle.NewClient(paddle.Config{
		APIURL:  cfg.OCR.APIURL,
		JobURL:  cfg.OCR.JobURL,
		Token:   cfg.OCR.Token,
		Model:   cfg.OCR.Model,
		Timeout: cfg.OCR.RequestTimeout,
	}, logger)
	if err := app.gateway.Ready(); err != nil {
		logger.Warn("OCR gateway is not configured; uploads will be rejected", "error", err)
	}

	materializer := storage.NewMaterializer(storage.MaterializerConfig{}, logger)

	app.queue, err = task.New(app.gateway, materializer, app.layout, task.Config{
		Concurrency:  cfg.Queue.Concurrency,
		QueueSize:    cfg.Queue.QueueSize,
		PollInterval: cfg.OCR.PollInterval,
		PollMaxWait:  cfg.OCR.PollMaxWait,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create job queue: %w", err)
	}

	app.handler, err = api.NewTaskHandler(app.queue, app.layout, markdown.NewRenderer(), api.TaskHandlerConfig{
		Limits: api.UploadLimits{
			MaxFileBytes:  cfg.Storage.MaxFileBytes,
			MaxTotalBytes: cfg.Storage.MaxTotalBytes,
		},
		Ready: app.gateway.Ready,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task handler: %w", err)
	}

	app.queue.Start()
	logger.Info("Application initialized successfully",
		"workers", cfg.Queue.Concurrency,
		"queue_size", cfg.Queue.QueueSize)
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.queue != nil {
		app.queue.Stop()
	}
	app.logger.Info("Application shutdown completed")
}
