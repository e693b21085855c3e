package models

// UnknownCPUModel is reported when the CPU model cannot be determined
const UnknownCPUModel = "Unknown"

// ExecutionMetadata describes where and on what hardware a job ran
type ExecutionMetadata struct {
	Location *GeoInfo     `json:"location" yaml:"location"`
	Hardware HardwareInfo `json:"hardware" yaml:"hardware"`
}

// GeoInfo is the approximate network location of the worker.
// Every field is optional since lookup services omit what they don't know.
type GeoInfo struct {
	IP        *string  `json:"ip" yaml:"ip"`
	City      *string  `json:"city" yaml:"city"`
	Region    *string  `json:"region" yaml:"region"`
	Country   *string  `json:"country" yaml:"country"`
	Latitude  *float64 `json:"latitude" yaml:"latitude"`
	Longitude *float64 `json:"longitude" yaml:"longitude"`
}

// HardwareInfo is always present, even when every probe failed
type HardwareInfo struct {
	GPU           *GPUInfo `json:"gpu" yaml:"gpu"`
	CPU           CPUInfo  `json:"cpu" yaml:"cpu"`
	MemoryTotalGB int      `json:"memory_total_gb" yaml:"memory_total_gb"`
}

// GPUInfo describes device index 0
type GPUInfo struct {
	Name               string  `json:"name" yaml:"name"`
	PowerDrawWatts     float64 `json:"power_draw_watts" yaml:"power_draw_watts"`
	UtilizationPercent *int    `json:"utilization_percent" yaml:"utilization_percent"`
	MemoryUsedMB       int64   `json:"memory_used_mb" yaml:"memory_used_mb"`
	MemoryTotalMB      int64   `json:"memory_total_mb" yaml:"memory_total_mb"`
	TemperatureCelsius int     `json:"temperature_celsius" yaml:"temperature_celsius"`
}

// CPUInfo holds the CPU model string and physical core count
type CPUInfo struct {
	Model string `json:"model" yaml:"model"`
	Cores int    `json:"cores" yaml:"cores"`
}

// DefaultHardware returns the neutral hardware description used when probes fail
func DefaultHardware() HardwareInfo {
	return HardwareInfo{
		CPU: CPUInfo{Model: UnknownCPUModel},
	}
}

// AsMap converts the metadata into the keyed form merged into job results.
// Keys match the JSON tags above.
func (m ExecutionMetadata) AsMap() map[string]interface{} {
	var location interface{}
	if m.Location != nil {
		location = map[string]interface{}{
			"ip":        derefString(m.Location.IP),
			"city":      derefString(m.Location.City),
			"region":    derefString(m.Location.Region),
			"country":   derefString(m.Location.Country),
			"latitude":  derefFloat(m.Location.Latitude),
			"longitude": derefFloat(m.Location.Longitude),
		}
	}

	var gpu interface{}
	if g := m.Hardware.GPU; g != nil {
		var util interface{}
		if g.UtilizationPercent != nil {
			util = *g.UtilizationPercent
		}
		gpu = map[string]interface{}{
			"name":                g.Name,
			"power_draw_watts":    g.PowerDrawWatts,
			"utilization_percent": util,
			"memory_used_mb":      g.MemoryUsedMB,
			"memory_total_mb":     g.MemoryTotalMB,
			"temperature_celsius": g.TemperatureCelsius,
		}
	}

	return map[string]interface{}{
		"location": location,
		"hardware": map[string]interface{}{
			"gpu": gpu,
			"cpu": map[string]interface{}{
				"model": m.Hardware.CPU.Model,
				"cores": m.Hardware.CPU.Cores,
			},
			"memory_total_gb": m.Hardware.MemoryTotalGB,
		},
	}
}

func derefString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func derefFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
