package worker

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Offer declares one (quantity, method) pair the worker serves, optionally
// narrowed by a limitations fragment.
type Offer struct {
	Quantity    string `yaml:"quantity"`
	Method      string `yaml:"method"`
	Limitations any    `yaml:"limitations,omitempty"`
}

// Config is the worker's YAML configuration.
type Config struct {
	ServerURL    string  `yaml:"server_url"`
	APIKey       string  `yaml:"api_key,omitempty"`
	BearerToken  string  `yaml:"bearer_token,omitempty"`
	TenantUUID   string  `yaml:"tenant_uuid"`
	SleepSeconds float64 `yaml:"sleep_seconds"`
	EndTime      string  `yaml:"end_time,omitempty"`
	Offers       []Offer `yaml:"offers"`
}

// LoadConfig reads and validates a worker configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read worker config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse worker config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("worker config: server_url is required")
	}
	if c.TenantUUID == "" {
		return fmt.Errorf("worker config: tenant_uuid is required")
	}
	if c.APIKey == "" && c.BearerToken == "" {
		return fmt.Errorf("worker config: one of api_key or bearer_token is required")
	}
	if len(c.Offers) == 0 {
		return fmt.Errorf("worker config: at least one offer is required")
	}
	for i, offer := range c.Offers {
		if offer.Quantity == "" || offer.Method == "" {
			return fmt.Errorf("worker config: offer %d needs both a quantity and a method", i)
		}
	}
	if c.EndTime != "" {
		if _, err := time.Parse(time.RFC3339, c.EndTime); err != nil {
			return fmt.Errorf("worker config: end_time must be RFC 3339: %w", err)
		}
	}
	return nil
}

// Sleep returns the poll interval, defaulting to three seconds.
func (c Config) Sleep() time.Duration {
	if c.SleepSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.SleepSeconds * float64(time.Second))
}

// Deadline returns the configured end time, or zero when the worker should
// run until cancelled.
func (c Config) Deadline() time.Time {
	if c.EndTime == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, c.EndTime)
	return t
}
