package metadata

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var errNoDevices = errors.New("no GPU devices found")

// GPUReading is one device as reported by the vendor management interface,
// in the interface's native units.
type GPUReading struct {
	Name                string
	PowerDrawMilliwatts float64
	// UtilizationPercent is nil when the device does not report it
	UtilizationPercent *int
	MemoryUsedBytes    uint64
	MemoryTotalBytes   uint64
	TemperatureCelsius int
}

// GPUSource enumerates GPU devices on the host
type GPUSource interface {
	Devices(ctx context.Context) ([]GPUReading, error)
}

// CommandRunner runs an external command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not available: %w", name, err)
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// NvidiaSMI reads devices from `nvidia-smi -q -x`
type NvidiaSMI struct {
	Run     CommandRunner
	Timeout time.Duration
}

// NewNvidiaSMI creates a source backed by the nvidia-smi binary on PATH
func NewNvidiaSMI() *NvidiaSMI {
	return &NvidiaSMI{Run: execRunner, Timeout: 3 * time.Second}
}

type smiLog struct {
	XMLName xml.Name `xml:"nvidia_smi_log"`
	GPUs    []smiGPU `xml:"gpu"`
}

type smiGPU struct {
	ProductName string `xml:"product_name"`
	// Newer drivers report gpu_power_readings, older ones power_readings
	PowerReadings    smiPower `xml:"power_readings"`
	GPUPowerReadings smiPower `xml:"gpu_power_readings"`
	Temperature      struct {
		GPUTemp string `xml:"gpu_temp"`
	} `xml:"temperature"`
	Utilization struct {
		GPUUtil string `xml:"gpu_util"`
	} `xml:"utilization"`
	FBMemory struct {
		Used  string `xml:"used"`
		Total string `xml:"total"`
	} `xml:"fb_memory_usage"`
}

type smiPower struct {
	PowerDraw    string `xml:"power_draw"`
	InstantPower string `xml:"instant_power_draw"`
}

// Devices implements GPUSource
func (s *NvidiaSMI) Devices(ctx context.Context) ([]GPUReading, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	out, err := s.Run(ctx, "nvidia-smi", "-q", "-x")
	if err != nil {
		return nil, fmt.Errorf("failed to query nvidia-smi: %w", err)
	}

	var parsed smiLog
	if err := xml.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse nvidia-smi XML: %w", err)
	}

	readings := make([]GPUReading, 0, len(parsed.GPUs))
	for _, g := range parsed.GPUs {
		powerW, _ := parseQuantity(firstNonEmpty(
			g.GPUPowerReadings.PowerDraw,
			g.GPUPowerReadings.InstantPower,
			g.PowerReadings.PowerDraw,
		))
		usedMiB, _ := parseQuantity(g.FBMemory.Used)
		totalMiB, _ := parseQuantity(g.FBMemory.Total)
		temp, _ := parseQuantity(g.Temperature.GPUTemp)

		r := GPUReading{
			Name:                strings.TrimSpace(g.ProductName),
			PowerDrawMilliwatts: powerW * 1000,
			MemoryUsedBytes:     uint64(usedMiB) * 1024 * 1024,
			MemoryTotalBytes:    uint64(totalMiB) * 1024 * 1024,
			TemperatureCelsius:  int(temp),
		}
		if util, ok := parseQuantity(g.Utilization.GPUUtil); ok {
			u := int(util)
			r.UtilizationPercent = &u
		}
		readings = append(readings, r)
	}

	return readings, nil
}

// parseQuantity extracts the number from strings like "61.52 W" or "1024 MiB".
// "N/A" and empty strings report false.
func parseQuantity(s string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if _, ok := parseQuantity(v); ok {
			return v
		}
	}
	return ""
}
