package enricher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/worker-metadata/pkg/handlers"
	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/metrics"
	"github.com/psantana5/worker-metadata/pkg/models"
)

const (
	// DefaultMetadataKey is the field metadata is attached under
	DefaultMetadataKey = "worker_metadata"
	// AlternateMetadataKey is the key used by the execution_metadata variant
	AlternateMetadataKey = "execution_metadata"

	// UnavailableMessage is reported in output when the handler could not be resolved
	UnavailableMessage = "Base handler unavailable"
	// ExecutionFailedMessage is reported when the handler returned an error or panicked
	ExecutionFailedMessage = "Handler execution failed"
)

// Collector produces a metadata snapshot. It must not fail.
type Collector interface {
	Collect(ctx context.Context) models.ExecutionMetadata
}

// Config holds enricher settings
type Config struct {
	// MetadataKey defaults to DefaultMetadataKey
	MetadataKey string
	// HandlerName labels logs and metrics
	HandlerName string

	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  trace.Tracer
}

// Enricher wraps a downstream handler and attaches execution metadata to its results
type Enricher struct {
	handler    handlers.Handler
	resolveErr error
	collector  Collector
	key        string
	name       string
	logger     *logging.Logger
	metrics    *metrics.Recorder
	tracer     trace.Tracer
}

// New creates an enricher around an already resolved handler
func New(handler handlers.Handler, collector Collector, cfg Config) *Enricher {
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = DefaultMetadataKey
	}
	if cfg.HandlerName == "" {
		cfg.HandlerName = "custom"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.FromEnv("worker_metadata")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/psantana5/worker-metadata/pkg/enricher")
	}

	return &Enricher{
		handler:   handler,
		collector: collector,
		key:       cfg.MetadataKey,
		name:      cfg.HandlerName,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}
}

// Resolve looks the handler up once and returns an enricher for it. When
// resolution fails the enricher is still returned; every job it handles gets
// the handler-unavailable result, and the error is returned for the caller to log.
func Resolve(reg *handlers.Registry, opts handlers.Options, collector Collector, cfg Config) (*Enricher, error) {
	h, err := reg.Resolve(cfg.HandlerName, opts)
	e := New(h, collector, cfg)
	if err != nil {
		e.handler = nil
		e.resolveErr = err
		e.logger.Error("Failed to resolve handler", logging.Fields{"handler": cfg.HandlerName, "error": err.Error()})
		return e, err
	}
	e.logger.Info("Resolved handler", logging.Fields{"handler": cfg.HandlerName})
	return e, nil
}

// Available reports whether a downstream handler was resolved
func (e *Enricher) Available() bool {
	return e.handler != nil && e.resolveErr == nil
}

// HandlerName returns the configured downstream handler name
func (e *Enricher) HandlerName() string {
	return e.name
}

// MetadataKey returns the key metadata is attached under
func (e *Enricher) MetadataKey() string {
	return e.key
}

// Handle runs the job through the downstream handler and attaches metadata.
// It never returns an error; failures are reported inside the result.
func (e *Enricher) Handle(ctx context.Context, job models.Job) models.Result {
	jobID := job.ID()
	ctx, span := e.tracer.Start(ctx, "enricher.Handle", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("handler.name", e.name),
	))
	defer span.End()

	log := e.logger.WithField("job_id", jobID)
	log.Info("Handler called")

	if !e.Available() {
		detail := "no handler configured"
		if e.resolveErr != nil {
			detail = e.resolveErr.Error()
		}
		log.Error("Base handler unavailable", logging.Fields{"error": detail})
		span.SetStatus(codes.Error, detail)
		e.metrics.RecordJob(e.name, metrics.OutcomeUnavailable, 0)
		return e.unavailableResult(detail)
	}

	log.Info("Invoking base handler")
	start := time.Now()
	result, err := e.invoke(ctx, job)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailed
		log.Error("Base handler failed", logging.Fields{"error": err.Error()})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = map[string]interface{}{
			"error":   ExecutionFailedMessage,
			"details": err.Error(),
		}
	}
	e.metrics.RecordJob(e.name, outcome, time.Since(start))

	log.Debug("Collecting worker metadata", logging.Fields{"result_type": fmt.Sprintf("%T", result)})
	meta := e.collector.Collect(ctx)

	enriched, placement := Attach(result, e.key, meta.AsMap())
	e.metrics.RecordPlacement(string(placement))
	span.SetAttributes(attribute.String("metadata.placement", string(placement)))
	log.Info("Added metadata", logging.Fields{"placement": string(placement)})

	return enriched
}

// invoke calls the handler, converting a panic into an error
func (e *Enricher) invoke(ctx context.Context, job models.Job) (result models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return e.handler.Handle(ctx, job)
}

func (e *Enricher) unavailableResult(detail string) map[string]interface{} {
	return map[string]interface{}{
		"error":  UnavailableMessage + ": " + detail,
		"output": map[string]interface{}{"error": UnavailableMessage},
		e.key:    map[string]interface{}{"error": detail},
	}
}
