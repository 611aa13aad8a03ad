package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Server struct {
		Port int `json:"port"`
	} `json:"server"`

	Upstream struct {
		ReaderURL string `json:"reader_url"`
		SearchURL string `json:"search_url"`
	} `json:"upstream"`

	Probe struct {
		URL string `json:"url"`
	} `json:"probe"`

	Pool struct {
		// MinSample and RatioFloor drive performance-based eviction:
		// a proxy with at least MinSample attempts and a success ratio
		// strictly below RatioFloor is moved to failed.
		MinSample  uint64  `json:"min_sample"`
		RatioFloor float64 `json:"ratio_floor"`

		FastStartPrefix    int    `json:"fast_start_prefix"`
		FastStartTimeoutMs uint32 `json:"fast_start_timeout_ms"`

		SweepTimeoutMs uint32 `json:"sweep_timeout_ms"`
		SweepDelayMs   uint32 `json:"sweep_delay_ms"`
		SweepIdleMs    uint32 `json:"sweep_idle_ms"`
	} `json:"pool"`

	Dispatch struct {
		MaxAttempts      int    `json:"max_attempts"`
		AttemptTimeoutMs uint32 `json:"attempt_timeout_ms"`
		BackoffMinMs     uint32 `json:"backoff_min_ms"`
		BackoffMaxMs     uint32 `json:"backoff_max_ms"`
	} `json:"dispatch"`

	Proxies []string `json:"proxies"`
}

func (c Config) FastStartTimeout() time.Duration {
	return time.Duration(c.Pool.FastStartTimeoutMs) * time.Millisecond
}

func (c Config) SweepTimeout() time.Duration {
	return time.Duration(c.Pool.SweepTimeoutMs) * time.Millisecond
}

func (c Config) SweepDelay() time.Duration {
	return time.Duration(c.Pool.SweepDelayMs) * time.Millisecond
}

func (c Config) SweepIdle() time.Duration {
	return time.Duration(c.Pool.SweepIdleMs) * time.Millisecond
}

func (c Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Dispatch.AttemptTimeoutMs) * time.Millisecond
}

func (c Config) BackoffMin() time.Duration {
	return time.Duration(c.Dispatch.BackoffMinMs) * time.Millisecond
}

func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Dispatch.BackoffMaxMs) * time.Millisecond
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	var cfg Config
	_ = json.Unmarshal(defaultConfig, &cfg)
	configValue.Store(cfg)
}

// ReadSettings loads the settings file, creating it from the embedded
// defaults when missing.
func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", "error", err)
				return
			}
			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", "error", err)
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", "error", err)
			return
		}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file:", "error", err)
		return
	}

	applyConfigUpdate(newConfig, false)
	log.Debug("Settings file loaded successfully")
}

// SetConfig replaces the active configuration and persists it to disk.
func SetConfig(newConfig Config) {
	applyConfigUpdate(newConfig, true)
}

func applyConfigUpdate(newConfig Config, persistToFile bool) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)

	if !persistToFile {
		return
	}

	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		log.Error("Error marshalling new configuration:", "error", err)
		return
	}
	if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
		log.Error("Error writing new configuration to file:", "error", err)
	}
}

// GetConfig returns the current configuration atomically.
func GetConfig() Config {
	return configValue.Load().(Config)
}
