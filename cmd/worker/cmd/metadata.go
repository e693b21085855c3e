package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/worker-metadata/pkg/models"
)

var metadataOutput string

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print this worker's execution metadata",
	Long:  `Collect and print the metadata snapshot that would be attached to a job result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := loadSettings(viper.GetViper())
		logger := s.newLogger("worker")
		logger.SetOutput(cmd.ErrOrStderr())

		meta := s.newCollector(logger, nil).Collect(cmd.Context())
		return renderMetadata(cmd.OutOrStdout(), meta, metadataOutput)
	},
}

func init() {
	metadataCmd.Flags().StringVarP(&metadataOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(metadataCmd)
}

func renderMetadata(w io.Writer, meta models.ExecutionMetadata, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(meta.AsMap())

	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(meta); err != nil {
			return err
		}
		return encoder.Close()

	case "table":
		table := tablewriter.NewWriter(w)
		table.Header("Field", "Value")
		for _, row := range metadataRows(meta) {
			table.Append(row[0], row[1])
		}
		return table.Render()

	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func metadataRows(meta models.ExecutionMetadata) [][2]string {
	hw := meta.Hardware
	rows := [][2]string{}

	if loc := meta.Location; loc != nil {
		rows = append(rows,
			[2]string{"Location IP", optString(loc.IP)},
			[2]string{"Location", fmt.Sprintf("%s, %s, %s", optString(loc.City), optString(loc.Region), optString(loc.Country))},
			[2]string{"Coordinates", fmt.Sprintf("%s, %s", optFloat(loc.Latitude), optFloat(loc.Longitude))},
		)
	} else {
		rows = append(rows, [2]string{"Location", "unavailable"})
	}

	if gpu := hw.GPU; gpu != nil {
		util := "N/A"
		if gpu.UtilizationPercent != nil {
			util = strconv.Itoa(*gpu.UtilizationPercent) + "%"
		}
		rows = append(rows,
			[2]string{"GPU", gpu.Name},
			[2]string{"GPU Power", fmt.Sprintf("%.2f W", gpu.PowerDrawWatts)},
			[2]string{"GPU Utilization", util},
			[2]string{"GPU Memory", fmt.Sprintf("%d / %d MB", gpu.MemoryUsedMB, gpu.MemoryTotalMB)},
			[2]string{"GPU Temperature", fmt.Sprintf("%d C", gpu.TemperatureCelsius)},
		)
	} else {
		rows = append(rows, [2]string{"GPU", "none"})
	}

	return append(rows,
		[2]string{"CPU", hw.CPU.Model},
		[2]string{"CPU Cores", strconv.Itoa(hw.CPU.Cores)},
		[2]string{"Memory", fmt.Sprintf("%d GB", hw.MemoryTotalGB)},
	)
}

func optString(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 4, 64)
}
