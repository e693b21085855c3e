package metadata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/metrics"
	"github.com/psantana5/worker-metadata/pkg/models"
)

const bytesPerMB = 1024 * 1024
const bytesPerGB = 1024 * 1024 * 1024

// Config holds collector configuration. Zero values select the defaults.
type Config struct {
	// LocationDisabled skips the geolocation lookup entirely
	LocationDisabled bool
	LocationURL      string
	LocationTimeout  time.Duration
	HTTPClient       *http.Client

	// GPUDisabled skips the GPU probe entirely
	GPUDisabled bool
	GPU         GPUSource

	CPUInfoPath string
	Host        HostStats

	// Cache is shared for the process lifetime; a fresh one is created if nil
	Cache *LocationCache

	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  trace.Tracer
}

// Collector produces ExecutionMetadata snapshots. Collect never fails.
type Collector struct {
	cfg      Config
	location *locationClient
	logger   *logging.Logger
	tracer   trace.Tracer
}

// probeResult is a probe's outcome before it is collapsed to an optional value
type probeResult[T any] struct {
	value T
	err   error
}

func (r probeResult[T]) failed() bool {
	return r.err != nil
}

// NewCollector creates a collector, filling defaults for unset fields
func NewCollector(cfg Config) *Collector {
	if cfg.LocationURL == "" {
		cfg.LocationURL = DefaultLocationURL
	}
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = DefaultLocationTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.GPU == nil {
		cfg.GPU = NewNvidiaSMI()
	}
	if cfg.CPUInfoPath == "" {
		cfg.CPUInfoPath = DefaultCPUInfoPath
	}
	if cfg.Host == nil {
		cfg.Host = gopsutilStats{}
	}
	if cfg.Cache == nil {
		cfg.Cache = NewLocationCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.FromEnv("worker_metadata")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/psantana5/worker-metadata/pkg/metadata")
	}

	return &Collector{
		cfg: cfg,
		location: &locationClient{
			url:        cfg.LocationURL,
			timeout:    cfg.LocationTimeout,
			httpClient: cfg.HTTPClient,
		},
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}
}

// Collect gathers a snapshot from the three probes
func (c *Collector) Collect(ctx context.Context) models.ExecutionMetadata {
	ctx, span := c.tracer.Start(ctx, "metadata.Collect")
	defer span.End()

	location := c.ProbeLocation(ctx)
	gpu := c.ProbeGPU(ctx)
	cpuInfo, memGB := c.ProbeSystem(ctx)

	span.SetAttributes(
		attribute.Bool("metadata.location", location != nil),
		attribute.Bool("metadata.gpu", gpu != nil),
		attribute.String("metadata.cpu_model", cpuInfo.Model),
	)

	return models.ExecutionMetadata{
		Location: location,
		Hardware: models.HardwareInfo{
			GPU:           gpu,
			CPU:           cpuInfo,
			MemoryTotalGB: memGB,
		},
	}
}

// ProbeLocation returns the memoized network location, or nil when the
// lookup failed or is disabled
func (c *Collector) ProbeLocation(ctx context.Context) *models.GeoInfo {
	if c.cfg.LocationDisabled {
		c.logger.Debug("geolocation disabled; skipping")
		return nil
	}

	if geo, ok := c.cfg.Cache.Cached(); ok {
		return geo
	}

	start := time.Now()
	geo, err := c.cfg.Cache.GetOrCompute(ctx, func(ctx context.Context) (*models.GeoInfo, error) {
		c.logger.Debug("fetching geolocation", logging.Fields{"url": c.cfg.LocationURL})
		return c.location.lookup(ctx)
	})
	res := probeResult[*models.GeoInfo]{value: geo, err: err}
	c.cfg.Metrics.RecordProbe(metrics.ProbeLocation, time.Since(start), res.failed())

	if res.failed() {
		c.logger.Debug("geolocation fetch failed", logging.Fields{"error": err.Error()})
		return nil
	}
	if geo != nil && geo.City != nil {
		c.logger.Debug("geolocation cached", logging.Fields{"city": *geo.City})
	}
	return res.value
}

// ProbeGPU reads device index 0, or returns nil when no GPU can be read
func (c *Collector) ProbeGPU(ctx context.Context) *models.GPUInfo {
	if c.cfg.GPUDisabled {
		c.logger.Debug("GPU probe disabled; skipping")
		return nil
	}

	start := time.Now()
	res := c.readGPU(ctx)
	c.cfg.Metrics.RecordProbe(metrics.ProbeGPU, time.Since(start), res.failed())

	if res.failed() {
		c.logger.Debug("GPU probe failed", logging.Fields{"error": res.err.Error()})
		return nil
	}

	g := res.value
	fields := logging.Fields{"gpu": g.Name, "temp": g.TemperatureCelsius}
	if g.UtilizationPercent != nil {
		fields["util"] = *g.UtilizationPercent
	}
	c.logger.Debug("GPU probed", fields)
	return g
}

func (c *Collector) readGPU(ctx context.Context) (res probeResult[*models.GPUInfo]) {
	defer func() {
		if r := recover(); r != nil {
			res = probeResult[*models.GPUInfo]{err: panicError(r)}
		}
	}()

	devices, err := c.cfg.GPU.Devices(ctx)
	if err != nil {
		return probeResult[*models.GPUInfo]{err: err}
	}
	if len(devices) == 0 {
		return probeResult[*models.GPUInfo]{err: errNoDevices}
	}

	d := devices[0]
	power := d.PowerDrawMilliwatts / 1000.0
	if power < 0 {
		power = 0
	}
	return probeResult[*models.GPUInfo]{value: &models.GPUInfo{
		Name:               d.Name,
		PowerDrawWatts:     power,
		UtilizationPercent: d.UtilizationPercent,
		MemoryUsedMB:       int64(d.MemoryUsedBytes / bytesPerMB),
		MemoryTotalMB:      int64(d.MemoryTotalBytes / bytesPerMB),
		TemperatureCelsius: d.TemperatureCelsius,
	}}
}

// ProbeSystem returns the CPU description and total memory in GB.
// The CPU model read and the core/memory reads fail independently.
func (c *Collector) ProbeSystem(ctx context.Context) (models.CPUInfo, int) {
	info := models.CPUInfo{Model: models.UnknownCPUModel}

	start := time.Now()
	model, err := readCPUModel(c.cfg.CPUInfoPath)
	c.cfg.Metrics.RecordProbe(metrics.ProbeCPU, time.Since(start), err != nil)
	if err != nil {
		c.logger.Debug("cpuinfo read failed", logging.Fields{"error": err.Error()})
	} else {
		info.Model = model
	}

	start = time.Now()
	cores := c.physicalCores(ctx)
	memGB := c.totalMemoryGB(ctx)
	c.cfg.Metrics.RecordProbe(metrics.ProbeMemory, time.Since(start), cores.failed() || memGB.failed())

	info.Cores = cores.value
	return info, memGB.value
}

func (c *Collector) physicalCores(ctx context.Context) (res probeResult[int]) {
	defer func() {
		if r := recover(); r != nil {
			res = probeResult[int]{err: panicError(r)}
		}
	}()

	n, err := c.cfg.Host.PhysicalCores(ctx)
	if err != nil {
		c.logger.Debug("physical core count failed", logging.Fields{"error": err.Error()})
		return probeResult[int]{err: err}
	}
	if n < 0 {
		n = 0
	}
	return probeResult[int]{value: n}
}

func (c *Collector) totalMemoryGB(ctx context.Context) (res probeResult[int]) {
	defer func() {
		if r := recover(); r != nil {
			res = probeResult[int]{err: panicError(r)}
		}
	}()

	total, err := c.cfg.Host.TotalMemoryBytes(ctx)
	if err != nil {
		c.logger.Debug("total memory read failed", logging.Fields{"error": err.Error()})
		return probeResult[int]{err: err}
	}
	return probeResult[int]{value: int(total / bytesPerGB)}
}

// Cache returns the location cache used by this collector
func (c *Collector) Cache() *LocationCache {
	return c.cfg.Cache
}

func panicError(r interface{}) error {
	return fmt.Errorf("probe panicked: %v", r)
}
