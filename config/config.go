package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Service struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type Services struct {
	Classifier Service `mapstructure:"classifier" yaml:"classifier"`
}

type Audio struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int `mapstructure:"channels" yaml:"channels"`
	FrameSize  int `mapstructure:"frame_size" yaml:"frame_size"`
}

type Pool struct {
	Ceiling             int           `mapstructure:"ceiling" yaml:"ceiling"`
	Floor               int           `mapstructure:"floor" yaml:"floor"`
	BackpressureAfter   time.Duration `mapstructure:"backpressure_after" yaml:"backpressure_after"`
	ElevatedRetainRatio float64       `mapstructure:"elevated_retain_ratio" yaml:"elevated_retain_ratio"`
	CriticalRetainRatio float64       `mapstructure:"critical_retain_ratio" yaml:"critical_retain_ratio"`
}

type Extractor struct {
	LatencyBudget  time.Duration `mapstructure:"latency_budget" yaml:"latency_budget"`
	HandlingBudget time.Duration `mapstructure:"handling_budget" yaml:"handling_budget"`
	TempoHistory   int           `mapstructure:"tempo_history" yaml:"tempo_history"`
}

type Inference struct {
	Budget time.Duration `mapstructure:"budget" yaml:"budget"`
}

type Fusion struct {
	// StalenessWindow of zero keeps every source's last sample eligible
	// indefinitely.
	StalenessWindow time.Duration `mapstructure:"staleness_window" yaml:"staleness_window"`
}

type Monitor struct {
	HistorySize     int           `mapstructure:"history_size" yaml:"history_size"`
	GrowthThreshold float64       `mapstructure:"growth_threshold_mb_per_min" yaml:"growth_threshold_mb_per_min"`
	PeakCeilingMB   float64       `mapstructure:"peak_ceiling_mb" yaml:"peak_ceiling_mb"`
	SampleInterval  time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

type Summary struct {
	TimeWindow time.Duration `mapstructure:"time_window" yaml:"time_window"`
	Overlap    time.Duration `mapstructure:"overlap" yaml:"overlap"`
	Eras       int           `mapstructure:"eras" yaml:"eras"`
}

type Root struct {
	Pipeline struct {
		Name    string `mapstructure:"name" yaml:"name"`
		Version string `mapstructure:"version" yaml:"version"`
		LogLvl  string `mapstructure:"log_level" yaml:"log_level"`
	} `mapstructure:"pipeline" yaml:"pipeline"`
	Audio     Audio     `mapstructure:"audio" yaml:"audio"`
	Services  Services  `mapstructure:"services" yaml:"services"`
	Pool      Pool      `mapstructure:"pool" yaml:"pool"`
	Extractor Extractor `mapstructure:"extractor" yaml:"extractor"`
	Inference Inference `mapstructure:"inference" yaml:"inference"`
	Fusion    Fusion    `mapstructure:"fusion" yaml:"fusion"`
	Monitor   Monitor   `mapstructure:"monitor" yaml:"monitor"`
	Summary   Summary   `mapstructure:"summary" yaml:"summary"`
	Paths     struct {
		Outputs string `mapstructure:"outputs" yaml:"outputs"`
	} `mapstructure:"paths" yaml:"paths"`
}

// Default returns a Root with every tunable at its documented target.
func Default() *Root {
	var c Root
	c.Pipeline.Name = "moodpipe"
	c.Pipeline.Version = "0.1.0"
	c.Pipeline.LogLvl = "info"
	c.Audio = Audio{SampleRate: 16000, Channels: 1, FrameSize: 1024}
	c.Pool = Pool{
		Ceiling:             10,
		Floor:               2,
		BackpressureAfter:   2 * time.Second,
		ElevatedRetainRatio: 0.8,
		CriticalRetainRatio: 0.6,
	}
	c.Extractor = Extractor{
		LatencyBudget:  50 * time.Millisecond,
		HandlingBudget: 5 * time.Millisecond,
		TempoHistory:   64,
	}
	c.Inference = Inference{Budget: 10 * time.Millisecond}
	c.Fusion = Fusion{StalenessWindow: 0}
	c.Monitor = Monitor{
		HistorySize:     32,
		GrowthThreshold: 5,
		PeakCeilingMB:   100,
		SampleInterval:  5 * time.Second,
		CleanupInterval: 60 * time.Second,
	}
	c.Summary = Summary{TimeWindow: 30 * time.Second, Overlap: 10 * time.Second, Eras: 3}
	c.Paths.Outputs = "outputs"
	return &c
}

// Load reads config/<env>/config.yaml (env from CONFIG_ENV, default "dev")
// on top of the defaults. Any key can be overridden via MOODPIPE_* env vars,
// e.g. MOODPIPE_POOL_CEILING=8.
func Load() (*Root, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MOODPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// seed every key from the defaults so env overrides bind even when the
	// config file omits them
	conf := Default()
	seed, err := yaml.Marshal(conf)
	if err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(seed)); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	v.SetConfigFile(filepath.Join("config", env, "config.yaml"))
	if err := v.MergeInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config read: %w", err)
		}
		// no file: defaults plus env overrides still apply
	}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Root) validate() error {
	if c.Pool.Floor < 1 {
		return fmt.Errorf("pool floor %d below 1", c.Pool.Floor)
	}
	if c.Pool.Ceiling < c.Pool.Floor {
		return fmt.Errorf("pool ceiling %d below floor %d", c.Pool.Ceiling, c.Pool.Floor)
	}
	if c.Audio.FrameSize <= 0 || c.Audio.FrameSize&(c.Audio.FrameSize-1) != 0 {
		return fmt.Errorf("frame size %d must be a positive power of two", c.Audio.FrameSize)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("only mono capture is supported, got %d channels", c.Audio.Channels)
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func (c *Root) Dump() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
