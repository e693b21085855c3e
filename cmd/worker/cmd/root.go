package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/worker-metadata/pkg/enricher"
	"github.com/psantana5/worker-metadata/pkg/handlers"
	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/metadata"
	"github.com/psantana5/worker-metadata/pkg/metrics"
	"github.com/psantana5/worker-metadata/pkg/tracing"
)

var cfgFile string

// version is overridden at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serverless GPU worker that attaches execution metadata to job results",
	Long: `worker wraps a job handler and adds the worker's geolocation and hardware
snapshot (GPU, CPU, memory) to every result it returns.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.worker-metadata/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("handler", "", "downstream handler name (default echo)")
	rootCmd.PersistentFlags().String("metadata-key", "", "result key metadata is attached under")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("handler", rootCmd.PersistentFlags().Lookup("handler"))
	viper.BindPFlag("metadata.key", rootCmd.PersistentFlags().Lookup("metadata-key"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("handler", "echo")
	v.SetDefault("metadata.key", enricher.DefaultMetadataKey)
	v.SetDefault("location.enabled", true)
	v.SetDefault("location.url", metadata.DefaultLocationURL)
	v.SetDefault("location.timeout", metadata.DefaultLocationTimeout)
	v.SetDefault("gpu.enabled", true)
	v.SetDefault("listen", ":8000")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", tracing.DefaultEndpoint)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("log_format", "LOG_FORMAT")
	v.BindEnv("handler", "WORKER_HANDLER")
	v.BindEnv("handler_command", "WORKER_HANDLER_COMMAND")
	v.BindEnv("handler_url", "WORKER_HANDLER_URL")
	v.BindEnv("handler_timeout", "WORKER_HANDLER_TIMEOUT")
	v.BindEnv("metadata.key", "METADATA_KEY")
	v.BindEnv("location.enabled", "LOCATION_ENABLED")
	v.BindEnv("location.url", "LOCATION_URL")
	v.BindEnv("location.timeout", "LOCATION_TIMEOUT")
	v.BindEnv("gpu.enabled", "GPU_ENABLED")
	v.BindEnv("listen", "WORKER_LISTEN")
	v.BindEnv("tracing.enabled", "OTEL_ENABLED")
	v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".worker-metadata"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	bindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
		}
	}
}

// settings is the resolved worker configuration
type settings struct {
	LogLevel  string
	LogFormat string

	Handler        string
	HandlerCommand []string
	HandlerURL     string
	HandlerTimeout time.Duration

	MetadataKey     string
	LocationEnabled bool
	LocationURL     string
	LocationTimeout time.Duration
	GPUEnabled      bool

	Listen          string
	TracingEnabled  bool
	TracingEndpoint string
}

func loadSettings(v *viper.Viper) settings {
	return settings{
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		Handler:         v.GetString("handler"),
		HandlerCommand:  v.GetStringSlice("handler_command"),
		HandlerURL:      v.GetString("handler_url"),
		HandlerTimeout:  v.GetDuration("handler_timeout"),
		MetadataKey:     v.GetString("metadata.key"),
		LocationEnabled: v.GetBool("location.enabled"),
		LocationURL:     v.GetString("location.url"),
		LocationTimeout: v.GetDuration("location.timeout"),
		GPUEnabled:      v.GetBool("gpu.enabled"),
		Listen:          v.GetString("listen"),
		TracingEnabled:  v.GetBool("tracing.enabled"),
		TracingEndpoint: v.GetString("tracing.endpoint"),
	}
}

func (s settings) newLogger(component string) *logging.Logger {
	return logging.NewLogger(component, logging.ParseLevel(s.LogLevel), s.LogFormat == "json")
}

func (s settings) newCollector(logger *logging.Logger, rec *metrics.Recorder) *metadata.Collector {
	return metadata.NewCollector(metadata.Config{
		LocationDisabled: !s.LocationEnabled,
		LocationURL:      s.LocationURL,
		LocationTimeout:  s.LocationTimeout,
		GPUDisabled:      !s.GPUEnabled,
		Logger:           logger,
		Metrics:          rec,
	})
}

func (s settings) handlerOptions(logger *logging.Logger) handlers.Options {
	return handlers.Options{
		Command: s.HandlerCommand,
		URL:     s.HandlerURL,
		Timeout: s.HandlerTimeout,
		Logger:  logger,
	}
}

// newEnricher resolves the configured handler. A resolution failure is
// logged by the enricher and yields an enricher in unavailable mode.
func (s settings) newEnricher(collector enricher.Collector, logger *logging.Logger, rec *metrics.Recorder) *enricher.Enricher {
	e, _ := enricher.Resolve(handlers.NewRegistry(), s.handlerOptions(logger), collector, enricher.Config{
		MetadataKey: s.MetadataKey,
		HandlerName: s.Handler,
		Logger:      logger,
		Metrics:     rec,
	})
	return e
}
