package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"muster/services/inventory"
)

// Config is the runtime configuration for the inventory service.
type Config struct {
	ListenAddr  string
	DatabaseDSN string

	// NATSURL may be empty, which disables event production (the null
	// producer is substituted) and both bus consumers.
	NATSURL string

	StreamName      string
	EventsSubject   string
	IngressSubject  string
	IngressDurable  string
	ProfileSubject  string
	ConsumerDurable string

	// PushgatewayURL, when set, receives reaper run metrics.
	PushgatewayURL string

	Staleness inventory.StalenessConfig
}

// Load reads configuration from the environment, with the staleness policy
// optionally coming from a YAML file named by INVENTORY_STALENESS_FILE.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      getEnv("INVENTORY_LISTEN_ADDR", ":8080"),
		DatabaseDSN:     os.Getenv("INVENTORY_DB_DSN"),
		NATSURL:         os.Getenv("INVENTORY_NATS_URL"),
		StreamName:      getEnv("INVENTORY_STREAM", "MUSTER"),
		EventsSubject:   getEnv("INVENTORY_EVENTS_SUBJECT", "muster.hosts.events"),
		IngressSubject:  getEnv("INVENTORY_INGRESS_SUBJECT", "muster.hosts.ingress"),
		IngressDurable:  getEnv("INVENTORY_INGRESS_DURABLE", "inventory-ingress"),
		ProfileSubject:  getEnv("INVENTORY_PROFILE_SUBJECT", "muster.hosts.profile"),
		ConsumerDurable: getEnv("INVENTORY_CONSUMER_DURABLE", "inventory-profile"),
		PushgatewayURL:  os.Getenv("INVENTORY_PUSHGATEWAY_URL"),
		Staleness:       inventory.DefaultStalenessConfig(),
	}

	if cfg.DatabaseDSN == "" {
		return Config{}, fmt.Errorf("INVENTORY_DB_DSN is required")
	}

	if path := os.Getenv("INVENTORY_STALENESS_FILE"); path != "" {
		staleness, err := loadStalenessFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Staleness = staleness
	}

	for _, override := range []struct {
		env  string
		dest *time.Duration
	}{
		{"INVENTORY_STALE_OFFSET", &cfg.Staleness.StaleOffset},
		{"INVENTORY_WARNING_OFFSET", &cfg.Staleness.WarningOffset},
		{"INVENTORY_CULLED_OFFSET", &cfg.Staleness.CulledOffset},
	} {
		raw := os.Getenv(override.env)
		if raw == "" {
			continue
		}
		d, err := parseOffset(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", override.env, err)
		}
		*override.dest = d
	}

	if err := cfg.Staleness.Validate(); err != nil {
		return Config{}, fmt.Errorf("staleness policy: %w", err)
	}

	return cfg, nil
}

type stalenessFile struct {
	StaleOffset   string `yaml:"stale_offset"`
	WarningOffset string `yaml:"warning_offset"`
	CulledOffset  string `yaml:"culled_offset"`
}

func loadStalenessFile(path string) (inventory.StalenessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return inventory.StalenessConfig{}, fmt.Errorf("read staleness file: %w", err)
	}

	var file stalenessFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return inventory.StalenessConfig{}, fmt.Errorf("parse staleness file: %w", err)
	}

	cfg := inventory.DefaultStalenessConfig()
	for _, field := range []struct {
		name string
		raw  string
		dest *time.Duration
	}{
		{"stale_offset", file.StaleOffset, &cfg.StaleOffset},
		{"warning_offset", file.WarningOffset, &cfg.WarningOffset},
		{"culled_offset", file.CulledOffset, &cfg.CulledOffset},
	} {
		if field.raw == "" {
			continue
		}
		d, err := parseOffset(field.raw)
		if err != nil {
			return inventory.StalenessConfig{}, fmt.Errorf("invalid %s: %w", field.name, err)
		}
		*field.dest = d
	}

	return cfg, nil
}

// parseOffset accepts a Go duration string or a bare number of seconds.
func parseOffset(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("offset must be positive, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("offset must be positive, got %s", d)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
