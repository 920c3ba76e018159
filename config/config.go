package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/normalizer"
	"bpo-assigner/roster"
)

// EnvConfigPath names the environment variable pointing at config.toml.
const EnvConfigPath = "BPO_CONFIG"

// AppConfig is the application configuration.
type AppConfig struct {
	Roster RosterConfig `toml:"roster"`
	Rules  RulesConfig  `toml:"rules"`
	Output OutputConfig `toml:"output"`
	Server ServerConfig `toml:"server"`
}

// RosterConfig describes the fixed agents of every run.
type RosterConfig struct {
	Agents         []string `toml:"agents"`
	WeightedAgent  string   `toml:"weighted_agent"`
	WeightedWeight float64  `toml:"weighted_weight"`
	ExtraAgent     string   `toml:"extra_agent"`
	ExtraWeekday   string   `toml:"extra_weekday"`
}

// RulesConfig holds the client tokens and labels used by the rule engine.
type RulesConfig struct {
	ExclusiveClients []string `toml:"exclusive_clients"`
	ExclusiveAgent   string   `toml:"exclusive_agent"`
	PriorityClients  []string `toml:"priority_clients"`
	ReasonKeyword    string   `toml:"reason_keyword"`
	ReasonAgent      string   `toml:"reason_agent"`
	SentinelLabel    string   `toml:"sentinel_label"`
}

// OutputConfig controls the processed table.
type OutputConfig struct {
	Stage      string `toml:"stage"`
	Sheet      string `toml:"sheet"`
	FilePrefix string `toml:"file_prefix"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Addr        string `toml:"addr"`
	DownloadTTL string `toml:"download_ttl"`
}

// DefaultConfig returns the built-in roster and rules.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Roster: RosterConfig{
			Agents:         []string{"Ana Paniagua", "Alysson Garcia", "Julio de Leon", "Nancy Zet", "Melissa Florian"},
			WeightedAgent:  "Melissa Florian",
			WeightedWeight: 0.75,
			ExtraAgent:     "Karla Mendez",
			ExtraWeekday:   "saturday",
		},
		Rules: RulesConfig{
			ExclusiveClients: []string{"OXXO", "Axionlog"},
			ExclusiveAgent:   "Melissa Florian",
			PriorityClients:  []string{"La Comer", "Fresko", "Sumesa", "City Market"},
			ReasonKeyword:    "Reprogramacion",
			ReasonAgent:      "Julio de Leon",
			SentinelLabel:    "Incontactables",
		},
		Output: OutputConfig{
			Stage:      normalizer.DefaultStage,
			Sheet:      "Hoja1",
			FilePrefix: "Programa_Procesado",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			DownloadTTL: "30m",
		},
	}
}

// Load reads path over the defaults. An empty path falls back to
// $BPO_CONFIG; a missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &customerrors.ConfigError{
			Field: path,
			Err:   fmt.Errorf("%w: %v", customerrors.ErrInvalidConfig, err),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be caught by the roster builder.
func (c *AppConfig) Validate() error {
	if _, err := c.Weekday(); err != nil {
		return err
	}
	if _, err := c.DownloadTTL(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Rules.SentinelLabel) == "" {
		return &customerrors.ConfigError{
			Field: "rules.sentinel_label",
			Err:   fmt.Errorf("%w: empty sentinel label", customerrors.ErrInvalidConfig),
		}
	}
	return nil
}

// Weekday parses Roster.ExtraWeekday. Empty disables extra coverage.
func (c *AppConfig) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.Roster.ExtraWeekday))
	if name == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, &customerrors.ConfigError{
		Field: "roster.extra_weekday",
		Err:   fmt.Errorf("%w: unknown weekday %q", customerrors.ErrInvalidConfig, c.Roster.ExtraWeekday),
	}
}

// DownloadTTL parses Server.DownloadTTL.
func (c *AppConfig) DownloadTTL() (time.Duration, error) {
	if c.Server.DownloadTTL == "" {
		return 30 * time.Minute, nil
	}
	ttl, err := time.ParseDuration(c.Server.DownloadTTL)
	if err != nil || ttl <= 0 {
		return 0, &customerrors.ConfigError{
			Field: "server.download_ttl",
			Err:   fmt.Errorf("%w: invalid duration %q", customerrors.ErrInvalidConfig, c.Server.DownloadTTL),
		}
	}
	return ttl, nil
}

// RosterOptions converts the roster section for roster.Build.
func (c *AppConfig) RosterOptions() (roster.Options, error) {
	weekday, err := c.Weekday()
	if err != nil {
		return roster.Options{}, err
	}
	extra := c.Roster.ExtraAgent
	if strings.TrimSpace(c.Roster.ExtraWeekday) == "" {
		extra = ""
	}
	return roster.Options{
		Agents:         c.Roster.Agents,
		WeightedAgent:  c.Roster.WeightedAgent,
		WeightedWeight: c.Roster.WeightedWeight,
		ExtraAgent:     extra,
		ExtraWeekday:   weekday,
		Reserved:       []string{c.Rules.SentinelLabel},
	}, nil
}
