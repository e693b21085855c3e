package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/worker-metadata/pkg/api"
	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/metrics"
	"github.com/psantana5/worker-metadata/pkg/shutdown"
	"github.com/psantana5/worker-metadata/pkg/tracing"
)

var (
	serveLogDir          string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve jobs over HTTP",
	Long: `Start the worker's HTTP server. Jobs posted to /runsync (or /run) are passed
to the configured handler and returned with execution metadata attached.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default :8000)")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "", "also write logs to <log-dir>/worker.log")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for in-flight jobs on shutdown")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s := loadSettings(viper.GetViper())

	logger := s.newLogger("worker")
	if serveLogDir != "" {
		fileLogger, err := logging.NewFileLogger(serveLogDir, "worker", logging.ParseLevel(s.LogLevel), s.LogFormat == "json")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger = fileLogger
	}

	mgr := shutdown.New(serveShutdownTimeout, logger)
	mgr.Register("logger", shutdown.CloseResource(logger))

	provider, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "worker-metadata",
		ServiceVersion: version,
		OTLPEndpoint:   s.TracingEndpoint,
		Enabled:        s.TracingEnabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	mgr.Register("tracing", provider.Shutdown)

	rec := metrics.NewRecorder()
	collector := s.newCollector(logger, rec)
	e := s.newEnricher(collector, logger, rec)

	srv := api.NewServer(api.Config{
		Enricher:  e,
		Collector: collector,
		Metrics:   rec,
		Tracing:   provider,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              s.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	mgr.Register("jobs", shutdown.WaitForJobs(func() bool { return srv.InFlight() == 0 }, 100*time.Millisecond))
	mgr.Register("http", shutdown.StopHTTPServer(httpServer))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Worker listening", logging.Fields{
			"addr":              s.Listen,
			"handler":           e.HandlerName(),
			"handler_available": e.Available(),
			"metadata_key":      e.MetadataKey(),
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	mgr.Wait(ctx)

	if err := <-serveErr; err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
