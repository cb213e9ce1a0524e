package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Vision       VisionConfig       `yaml:"vision"`
	Surveillance SurveillanceConfig `yaml:"surveillance"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Cameras      []CameraConfig     `yaml:"cameras"`
	Zones        []string           `yaml:"zones"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIKey   string `yaml:"api_key"`
	AdminKey string `yaml:"admin_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
	RuntimeLib         string  `yaml:"runtime_lib"` // onnxruntime shared library; platform default when empty
}

type SurveillanceConfig struct {
	MatchThreshold   float64       `yaml:"match_threshold"`
	PreviewInterval  time.Duration `yaml:"preview_interval"`
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	CycleTimeout     time.Duration `yaml:"cycle_timeout"`
	FrameMaxAge      time.Duration `yaml:"frame_max_age"`
	IntrusionLogSize int           `yaml:"intrusion_log_size"`
	SeedFile         string        `yaml:"seed_file"`
}

type AlertsConfig struct {
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type CameraConfig struct {
	ID     string `yaml:"id"`
	URL    string `yaml:"url"`
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
	ZoneID string `yaml:"zone_id"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Surveillance.MatchThreshold < 0 {
		return fmt.Errorf("surveillance.match_threshold must be positive, got %v", c.Surveillance.MatchThreshold)
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("cameras[%d]: id is required", i)
		}
		if cam.URL == "" {
			return fmt.Errorf("camera %s: url is required", cam.ID)
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera %s: duplicate id", cam.ID)
		}
		seen[cam.ID] = true
	}
	return nil
}

// Camera returns the camera with the given id.
func (c *Config) Camera(id string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.ID == id {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Surveillance.MatchThreshold == 0 {
		cfg.Surveillance.MatchThreshold = 0.6
	}
	if cfg.Surveillance.PreviewInterval == 0 {
		cfg.Surveillance.PreviewInterval = time.Second
	}
	if cfg.Surveillance.MonitorInterval == 0 {
		cfg.Surveillance.MonitorInterval = 5 * time.Second
	}
	if cfg.Surveillance.CycleTimeout == 0 {
		cfg.Surveillance.CycleTimeout = 10 * time.Second
	}
	if cfg.Surveillance.FrameMaxAge == 0 {
		cfg.Surveillance.FrameMaxAge = 3 * time.Second
	}
	if cfg.Surveillance.IntrusionLogSize == 0 {
		cfg.Surveillance.IntrusionLogSize = 50
	}
	if cfg.Alerts.PublishTimeout == 0 {
		cfg.Alerts.PublishTimeout = 5 * time.Second
	}
	for i := range cfg.Cameras {
		if cfg.Cameras[i].FPS == 0 {
			cfg.Cameras[i].FPS = 2
		}
		if cfg.Cameras[i].Width == 0 {
			cfg.Cameras[i].Width = 640
		}
	}
	if len(cfg.Zones) == 0 {
		cfg.Zones = []string{"ENGINE", "A1", "B1", "C1"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CW_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CW_ADMIN_KEY"); v != "" {
		cfg.Server.AdminKey = v
	}
	if v := os.Getenv("CW_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CW_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CW_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CW_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CW_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CW_ONNXRUNTIME_LIB"); v != "" {
		cfg.Vision.RuntimeLib = v
	}
	if v := os.Getenv("CW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CW_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("CW_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("CW_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("CW_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("CW_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("CW_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Surveillance.MatchThreshold = f
		}
	}
	if v := os.Getenv("CW_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Surveillance.MonitorInterval = d
		}
	}
	if v := os.Getenv("CW_SEED_FILE"); v != "" {
		cfg.Surveillance.SeedFile = v
	}
	if v := os.Getenv("CW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
