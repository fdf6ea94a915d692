// Package config loads the bridge daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Bridge    BridgeConfig     `yaml:"bridge"`
	Command   CommandConfig    `yaml:"command"`
	Campaign  CampaignConfig   `yaml:"campaign"`
	Broadcast BroadcastConfig  `yaml:"broadcast"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// BridgeConfig tunes the event bridge supervisor.
type BridgeConfig struct {
	TickSeconds           int `yaml:"tick_seconds"`
	BackoffFloorSeconds   int `yaml:"backoff_floor_seconds"`
	BackoffCeilingSeconds int `yaml:"backoff_ceiling_seconds"`
}

// CommandConfig tunes correlated command sends.
type CommandConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// CampaignConfig tunes campaign runs.
type CampaignConfig struct {
	DeliveryWaitSeconds int `yaml:"delivery_wait_seconds"`
}

// BroadcastConfig tunes the status hub.
type BroadcastConfig struct {
	Buffer int `yaml:"buffer"`
}

// EndpointConfig seeds one known endpoint into the store at startup.
type EndpointConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Active  bool   `yaml:"active"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Bridge:    BridgeConfig{TickSeconds: 5, BackoffFloorSeconds: 1, BackoffCeilingSeconds: 60},
		Command:   CommandConfig{TimeoutSeconds: 30},
		Campaign:  CampaignConfig{DeliveryWaitSeconds: 30},
		Broadcast: BroadcastConfig{Buffer: 16},
	}
}

// Load reads a YAML config file, layering it over the defaults. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Tick returns the supervisor tick as a duration.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Bridge.TickSeconds) * time.Second
}

// BackoffFloor returns the reconnect backoff floor.
func (c *Config) BackoffFloor() time.Duration {
	return time.Duration(c.Bridge.BackoffFloorSeconds) * time.Second
}

// BackoffCeiling returns the reconnect backoff ceiling.
func (c *Config) BackoffCeiling() time.Duration {
	return time.Duration(c.Bridge.BackoffCeilingSeconds) * time.Second
}

// CommandTimeout returns the default correlated command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Command.TimeoutSeconds) * time.Second
}

// DeliveryWait returns the campaign delivery wait ceiling.
func (c *Config) DeliveryWait() time.Duration {
	return time.Duration(c.Campaign.DeliveryWaitSeconds) * time.Second
}
