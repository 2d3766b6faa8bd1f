package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the complete flight software configuration. Policy constants
// (failure thresholds, arm window) live here rather than in code.
type Config struct {
	TickRateHz int            `yaml:"tickRateHz"`
	Watchdog   WatchdogConfig `yaml:"watchdog"`
	Fault      FaultConfig    `yaml:"fault"`
	CDH        CDHConfig      `yaml:"cdh"`
	Uplink     UplinkConfig   `yaml:"uplink"`
	HTTP       HTTPConfig     `yaml:"http"`
	NVM        NVMConfig      `yaml:"nvm"`
	Log        LogConfig      `yaml:"log"`
	Tasks      []TaskConfig   `yaml:"tasks"`
}

// WatchdogConfig holds the hard-timeout settings for the main loop.
type WatchdogConfig struct {
	TimeoutTicks int `yaml:"timeoutTicks"`
}

// FaultConfig holds the graceful-degradation thresholds.
type FaultConfig struct {
	DefaultThreshold int            `yaml:"defaultThreshold"`
	Thresholds       map[string]int `yaml:"thresholds"`
}

// CDHConfig holds command handling settings.
type CDHConfig struct {
	ArmWindowSec int    `yaml:"armWindowSec"`
	DrainBudget  int    `yaml:"drainBudget"`
	AuthSecret   string `yaml:"authSecret"`
}

// UplinkConfig holds the NATS command transport settings.
type UplinkConfig struct {
	NATSURL     string `yaml:"natsUrl"`
	Subject     string `yaml:"subject"`
	AckSubject  string `yaml:"ackSubject"`
	InboxDepth  int    `yaml:"inboxDepth"`
}

// HTTPConfig holds the ground-debug server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// NVMConfig holds the persistent store settings.
type NVMConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds flight and audit log settings.
type LogConfig struct {
	Level       string `yaml:"level"`
	AuditDir    string `yaml:"auditDir"`
	MaxSizeMB   int    `yaml:"maxSizeMb"`
	MaxBackups  int    `yaml:"maxBackups"`
	MaxAgeDays  int    `yaml:"maxAgeDays"`
}

// TaskConfig declares one mission routine's schedule parameters.
type TaskConfig struct {
	Name        string  `yaml:"name"`
	Priority    int     `yaml:"priority"`
	FrequencyHz float64 `yaml:"frequencyHz"`
	CronExpr    string  `yaml:"cron"`
	Disabled    bool    `yaml:"disabled"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		TickRateHz: 10,
		Watchdog:   WatchdogConfig{TimeoutTicks: 10},
		Fault:      FaultConfig{DefaultThreshold: 3},
		CDH:        CDHConfig{ArmWindowSec: 30, DrainBudget: 8},
		Uplink: UplinkConfig{
			Subject:    "cmd.uplink",
			AckSubject: "cmd.ack",
			InboxDepth: 64,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		NVM:  NVMConfig{Path: "beepsat.db"},
		Log: LogConfig{
			Level:      "info",
			AuditDir:   "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BEEPSAT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BEEPSAT_NATS_URL"); v != "" {
		cfg.Uplink.NATSURL = v
	}
	if v := os.Getenv("BEEPSAT_NVM_PATH"); v != "" {
		cfg.NVM.Path = v
	}
	if v := os.Getenv("BEEPSAT_CMD_SECRET"); v != "" {
		cfg.CDH.AuthSecret = v
	}
	if v := os.Getenv("BEEPSAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	if c.TickRateHz <= 0 {
		return fmt.Errorf("tickRateHz must be > 0, got %d", c.TickRateHz)
	}
	if c.Watchdog.TimeoutTicks <= 1 {
		return fmt.Errorf("watchdog.timeoutTicks must be > 1, got %d", c.Watchdog.TimeoutTicks)
	}
	if c.Fault.DefaultThreshold <= 0 {
		return fmt.Errorf("fault.defaultThreshold must be > 0, got %d", c.Fault.DefaultThreshold)
	}
	for name, n := range c.Fault.Thresholds {
		if n <= 0 {
			return fmt.Errorf("fault.thresholds[%s] must be > 0, got %d", name, n)
		}
	}
	if c.CDH.ArmWindowSec <= 0 {
		return fmt.Errorf("cdh.armWindowSec must be > 0, got %d", c.CDH.ArmWindowSec)
	}
	if c.CDH.DrainBudget <= 0 {
		return fmt.Errorf("cdh.drainBudget must be > 0, got %d", c.CDH.DrainBudget)
	}
	if c.Uplink.InboxDepth <= 0 {
		return fmt.Errorf("uplink.inboxDepth must be > 0, got %d", c.Uplink.InboxDepth)
	}
	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task with empty name in config")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate task name %q in config", t.Name)
		}
		seen[t.Name] = true
		if t.FrequencyHz <= 0 && t.CronExpr == "" {
			return fmt.Errorf("task %q: frequencyHz must be > 0 or cron set", t.Name)
		}
	}
	return nil
}

// TickPeriod converts the configured tick rate to the tick quantum.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(float64(time.Second) / float64(c.TickRateHz))
}

// Threshold returns the consecutive-failure threshold for a task.
func (c *Config) Threshold(task string) int {
	if n, ok := c.Fault.Thresholds[task]; ok {
		return n
	}
	return c.Fault.DefaultThreshold
}

// ArmWindow returns the arm interlock expiry window.
func (c *Config) ArmWindow() time.Duration {
	return time.Duration(c.CDH.ArmWindowSec) * time.Second
}
