package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/worker-metadata/pkg/models"
)

var runJobFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single job and print the enriched result",
	Long: `Run one job through the configured handler and print the result with
metadata attached. The job is read from --job, or from stdin when --job is "-".
Where the metadata landed is reported on stderr.`,
	Example: `  worker run --job test_input.json
  echo '{"input":{"prompt":"a cat"}}' | worker run --job -`,
	RunE: runJob,
}

func init() {
	runCmd.Flags().StringVar(&runJobFile, "job", "test_input.json", "job file, or - for stdin")
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	job, err := readJob(cmd.InOrStdin(), runJobFile)
	if err != nil {
		return err
	}

	s := loadSettings(viper.GetViper())
	logger := s.newLogger("worker")
	logger.SetOutput(cmd.ErrOrStderr())

	collector := s.newCollector(logger, nil)
	e := s.newEnricher(collector, logger, nil)

	result := e.Handle(cmd.Context(), job)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	fmt.Fprintln(cmd.ErrOrStderr(), describePlacement(result, e.MetadataKey()))
	return nil
}

// readJob loads a job from path, or from stdin when path is "-"
func readJob(stdin io.Reader, path string) (models.Job, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open job file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var job models.Job
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("failed to parse job: expected a JSON object")
	}
	return job, nil
}

// describePlacement reports where metadata sits in an enriched result
func describePlacement(result models.Result, key string) string {
	m, ok := result.(map[string]interface{})
	if !ok {
		return "Metadata not found in result"
	}
	if _, failed := m["error"]; failed {
		if _, ok := m[key]; ok {
			return fmt.Sprintf("Job failed (%v); metadata attached at top level under %q", m["error"], key)
		}
	}
	if output, ok := m["output"].(map[string]interface{}); ok {
		if _, ok := output[key]; ok {
			return fmt.Sprintf("Metadata attached inside output under %q", key)
		}
	}
	if _, ok := m[key]; ok {
		return fmt.Sprintf("Metadata attached at top level under %q", key)
	}
	return "Metadata not found in result"
}
