package metadata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/worker-metadata/pkg/models"
)

// DefaultCPUInfoPath is the line-oriented system information source
const DefaultCPUInfoPath = "/proc/cpuinfo"

var errModelNotFound = errors.New("no model name line")

// HostStats reports physical cores and total memory
type HostStats interface {
	PhysicalCores(ctx context.Context) (int, error)
	TotalMemoryBytes(ctx context.Context) (uint64, error)
}

// gopsutilStats implements HostStats with gopsutil
type gopsutilStats struct{}

func (gopsutilStats) PhysicalCores(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, false)
}

func (gopsutilStats) TotalMemoryBytes(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// readCPUModel returns the text after the first colon of the first line
// starting with "model name"
func readCPUModel(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.UnknownCPUModel, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		_, value, ok := strings.Cut(line, ":")
		if !ok {
			return models.UnknownCPUModel, fmt.Errorf("malformed cpuinfo line %q", line)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return models.UnknownCPUModel, fmt.Errorf("empty model name in %s", path)
		}
		return value, nil
	}
	if err := scanner.Err(); err != nil {
		return models.UnknownCPUModel, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return models.UnknownCPUModel, errModelNotFound
}
