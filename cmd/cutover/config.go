package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Build       BuildConfig       `mapstructure:"build"`
	Cutover     CutoverConfig     `mapstructure:"cutover"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Docker      DockerConfig      `mapstructure:"docker"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServiceConfig names the deployed service and the slot it occupies.
type ServiceConfig struct {
	Name          string `mapstructure:"name"`
	ContainerName string `mapstructure:"container_name"` // defaults to the slugified name
	Repository    string `mapstructure:"repository"`     // defaults to the slugified name
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	ContainerPort int    `mapstructure:"container_port"`
	HealthPath    string `mapstructure:"health_path"`
}

// Slot returns the service slot the configuration describes.
func (c ServiceConfig) Slot() domain.ServiceSlot {
	containerPort := c.ContainerPort
	if containerPort == 0 {
		containerPort = c.Port
	}
	return domain.ServiceSlot{
		Service:       c.Name,
		ContainerName: deployment.ContainerName(c.Name, c.ContainerName),
		Host:          c.Host,
		Port:          c.Port,
		ContainerPort: containerPort,
		HealthPath:    c.HealthPath,
	}
}

// EnvironmentConfig locates the per-environment configuration bundles.
type EnvironmentConfig struct {
	Default      string   `mapstructure:"default"` // used when run is given no --env
	BundleDir    string   `mapstructure:"bundle_dir"`
	FilePattern  string   `mapstructure:"file_pattern"`
	RequiredKeys []string `mapstructure:"required_keys"`
}

// BuildConfig holds image build configuration.
type BuildConfig struct {
	SourceDir    string            `mapstructure:"source_dir"`
	Descriptor   string            `mapstructure:"descriptor"`
	Toolchain    string            `mapstructure:"toolchain"` // docker or exec
	Command      string            `mapstructure:"command"`   // exec toolchain only
	WorkspaceDir string            `mapstructure:"workspace_dir"`
	Exclude      []string          `mapstructure:"exclude"`
	Args         []string          `mapstructure:"args"` // NAME=value, case preserved
	TailLines    int               `mapstructure:"tail_lines"`
}

// BuildArgs returns the build arguments keyed by name.
func (c BuildConfig) BuildArgs() map[string]string {
	if len(c.Args) == 0 {
		return nil
	}
	return gotenv.Parse(strings.NewReader(strings.Join(c.Args, "\n")))
}

// CutoverConfig holds the cut-over waits and checks.
type CutoverConfig struct {
	RestartPolicy    string        `mapstructure:"restart_policy"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	ReclaimCommand   string        `mapstructure:"reclaim_command"`
	ReclaimAttempts  int           `mapstructure:"reclaim_attempts"`
	ReclaimInterval  time.Duration `mapstructure:"reclaim_interval"`
	ReclaimGrace     time.Duration `mapstructure:"reclaim_grace"`
	PresenceSettle   time.Duration `mapstructure:"presence_settle"`
	PresenceAttempts int           `mapstructure:"presence_attempts"`
	PresenceInterval time.Duration `mapstructure:"presence_interval"`
	ProbeSettle      time.Duration `mapstructure:"probe_settle"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	LogTail          int           `mapstructure:"log_tail"`
	StrictHealth     bool          `mapstructure:"strict_health"`
}

// RetentionConfig holds artifact retention configuration.
type RetentionConfig struct {
	Keep           int           `mapstructure:"keep"`
	RemoveAttempts int           `mapstructure:"remove_attempts"`
	RemoveInterval time.Duration `mapstructure:"remove_interval"`
}

// PipelineConfig holds job sequencing configuration.
type PipelineConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Lock         string        `mapstructure:"lock"` // lease or memory
	LeaseGrace   time.Duration `mapstructure:"lease_grace"`
	ReportFile   string        `mapstructure:"report_file"`
	ReportFormat string        `mapstructure:"report_format"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("service.name", "web")
	v.SetDefault("service.container_name", "")
	v.SetDefault("service.repository", "")
	v.SetDefault("service.host", "localhost")
	v.SetDefault("service.port", 3000)
	v.SetDefault("service.container_port", 0)
	v.SetDefault("service.health_path", "/health")

	v.SetDefault("environment.default", "")
	v.SetDefault("environment.bundle_dir", ".")
	v.SetDefault("environment.file_pattern", ".env.{env}")
	v.SetDefault("environment.required_keys", []string{"API_URL", "AUTH_TENANT_ID", "AUTH_CLIENT_ID"})

	v.SetDefault("build.source_dir", ".")
	v.SetDefault("build.descriptor", "Dockerfile")
	v.SetDefault("build.toolchain", "docker")
	v.SetDefault("build.command", "")
	v.SetDefault("build.workspace_dir", "./data/workspaces")
	v.SetDefault("build.exclude", []string{".git", ".svn", "node_modules", ".next", "dist", "out", ".env*.local"})
	v.SetDefault("build.args", []string{})
	v.SetDefault("build.tail_lines", 40)

	v.SetDefault("cutover.restart_policy", "unless-stopped")
	v.SetDefault("cutover.stop_timeout", "10s")
	v.SetDefault("cutover.reclaim_command", "")
	v.SetDefault("cutover.reclaim_attempts", 3)
	v.SetDefault("cutover.reclaim_interval", "1s")
	v.SetDefault("cutover.reclaim_grace", "2s")
	v.SetDefault("cutover.presence_settle", "5s")
	v.SetDefault("cutover.presence_attempts", 3)
	v.SetDefault("cutover.presence_interval", "2s")
	v.SetDefault("cutover.probe_settle", "10s")
	v.SetDefault("cutover.probe_timeout", "5s")
	v.SetDefault("cutover.log_tail", 50)
	v.SetDefault("cutover.strict_health", false)

	v.SetDefault("retention.keep", 5)
	v.SetDefault("retention.remove_attempts", 3)
	v.SetDefault("retention.remove_interval", "1s")

	v.SetDefault("pipeline.timeout", "30m")
	v.SetDefault("pipeline.lock", "lease")
	v.SetDefault("pipeline.lease_grace", "5m")
	v.SetDefault("pipeline.report_file", "")
	v.SetDefault("pipeline.report_format", "yaml")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/cutover.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("CUTOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configuration no job could run with.
func (c *Config) Validate() error {
	if err := c.Service.Slot().Validate(); err != nil {
		return err
	}
	switch {
	case c.Pipeline.Timeout <= 0:
		return errors.New("pipeline.timeout must be positive")
	case c.Retention.Keep <= 0:
		return errors.New("retention.keep must be positive")
	case c.Cutover.PresenceAttempts <= 0:
		return errors.New("cutover.presence_attempts must be positive")
	case c.Cutover.ProbeTimeout <= 0:
		return errors.New("cutover.probe_timeout must be positive")
	case c.Database.DSN == "":
		return errors.New("database.dsn is required")
	}
	switch c.Build.Toolchain {
	case "docker", "exec":
	default:
		return fmt.Errorf("build.toolchain must be docker or exec, got %q", c.Build.Toolchain)
	}
	switch c.Pipeline.Lock {
	case "lease", "memory":
	default:
		return fmt.Errorf("pipeline.lock must be lease or memory, got %q", c.Pipeline.Lock)
	}
	switch c.Pipeline.ReportFormat {
	case "", "yaml", "json":
	default:
		return fmt.Errorf("pipeline.report_format must be yaml or json, got %q", c.Pipeline.ReportFormat)
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
