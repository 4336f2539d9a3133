package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// TrackerConfig captures runtime settings for the tracker API service.
type TrackerConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	SynthURL    string `mapstructure:"synth_url"`
	APIKey      string `mapstructure:"api_key"`
}

// LoadTracker loads tracker configuration from defaults, files, and env vars.
func LoadTracker() (TrackerConfig, error) {
	v := viper.New()
	v.SetConfigName("tracker")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("TRACKER")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("synth_url", "http://localhost:8091")
	v.SetDefault("api_key", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return TrackerConfig{}, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg TrackerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return TrackerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// TrainerConfig captures runtime settings for the simulated training driver.
type TrainerConfig struct {
	TrackerURL      string `mapstructure:"tracker_url"`
	RedisURL        string `mapstructure:"redis_url"`
	SynthURL        string `mapstructure:"synth_url"`
	APIKey          string `mapstructure:"api_key"`
	WorkerID        string `mapstructure:"worker_id"`
	TickSeconds     int    `mapstructure:"tick_seconds"`
	MinDelta        int    `mapstructure:"min_delta"`
	MaxDelta        int    `mapstructure:"max_delta"`
	FailureRate     int    `mapstructure:"failure_rate_percent"`
	ArtifactHost    string `mapstructure:"artifact_host"`
	ArtifactPort    int    `mapstructure:"artifact_port"`
	ArtifactUser    string `mapstructure:"artifact_user"`
	ArtifactPass    string `mapstructure:"artifact_password"`
	ArtifactKeyPath string `mapstructure:"artifact_key_path"`
	ArtifactDir     string `mapstructure:"artifact_dir"`
}

// Tick returns the polling interval as a duration.
func (c TrainerConfig) Tick() time.Duration {
	if c.TickSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.TickSeconds) * time.Second
}

// LoadTrainer loads trainer configuration from defaults, files, and env vars.
func LoadTrainer() (TrainerConfig, error) {
	v := viper.New()
	v.SetConfigName("trainer")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("TRAINER")
	v.AutomaticEnv()

	v.SetDefault("tracker_url", "http://localhost:8080")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("synth_url", "http://localhost:8091")
	v.SetDefault("api_key", "")
	v.SetDefault("worker_id", "")
	v.SetDefault("tick_seconds", 2)
	v.SetDefault("min_delta", 5)
	v.SetDefault("max_delta", 20)
	v.SetDefault("failure_rate_percent", 0)
	v.SetDefault("artifact_host", "")
	v.SetDefault("artifact_port", 22)
	v.SetDefault("artifact_dir", "/srv/voice-samples")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return TrainerConfig{}, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg TrainerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return TrainerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}
