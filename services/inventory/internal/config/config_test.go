package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOffset(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "3600", time.Hour, false},
		{"duration", "29h", 29 * time.Hour, false},
		{"compound duration", "1h30m", 90 * time.Minute, false},
		{"zero seconds", "0", 0, true},
		{"negative seconds", "-5", 0, true},
		{"negative duration", "-1h", 0, true},
		{"garbage", "soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOffset(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOffset(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("parseOffset(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLoadStalenessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staleness.yaml")
	content := "stale_offset: 12h\nculled_offset: 720h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write staleness file: %v", err)
	}

	cfg, err := loadStalenessFile(path)
	if err != nil {
		t.Fatalf("loadStalenessFile error = %v", err)
	}

	if cfg.StaleOffset != 12*time.Hour {
		t.Fatalf("StaleOffset = %s, want 12h", cfg.StaleOffset)
	}
	if cfg.CulledOffset != 720*time.Hour {
		t.Fatalf("CulledOffset = %s, want 720h", cfg.CulledOffset)
	}
	// Unset fields keep the default policy.
	if cfg.WarningOffset != 7*24*time.Hour {
		t.Fatalf("WarningOffset = %s, want default", cfg.WarningOffset)
	}
}

func TestLoadStalenessFileErrors(t *testing.T) {
	if _, err := loadStalenessFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("stale_offset: [nope"), 0o600); err != nil {
		t.Fatalf("write staleness file: %v", err)
	}
	if _, err := loadStalenessFile(path); err == nil {
		t.Fatal("unparseable file should error")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INVENTORY_DB_DSN", "postgres://localhost/muster")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.StreamName != "MUSTER" {
		t.Fatalf("StreamName = %q", cfg.StreamName)
	}
	if cfg.EventsSubject != "muster.hosts.events" {
		t.Fatalf("EventsSubject = %q", cfg.EventsSubject)
	}
	if cfg.IngressSubject != "muster.hosts.ingress" {
		t.Fatalf("IngressSubject = %q", cfg.IngressSubject)
	}
	if cfg.IngressDurable != "inventory-ingress" {
		t.Fatalf("IngressDurable = %q", cfg.IngressDurable)
	}
	if cfg.Staleness.StaleOffset != 29*time.Hour {
		t.Fatalf("StaleOffset = %s, want default", cfg.Staleness.StaleOffset)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("INVENTORY_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("missing DSN should error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INVENTORY_DB_DSN", "postgres://localhost/muster")
	t.Setenv("INVENTORY_STALE_OFFSET", "86400")
	t.Setenv("INVENTORY_CULLED_OFFSET", "1440h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Staleness.StaleOffset != 24*time.Hour {
		t.Fatalf("StaleOffset = %s, want 24h", cfg.Staleness.StaleOffset)
	}
	if cfg.Staleness.CulledOffset != 1440*time.Hour {
		t.Fatalf("CulledOffset = %s, want 1440h", cfg.Staleness.CulledOffset)
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	t.Setenv("INVENTORY_DB_DSN", "postgres://localhost/muster")
	t.Setenv("INVENTORY_WARNING_OFFSET", "336h")
	t.Setenv("INVENTORY_CULLED_OFFSET", "168h")

	if _, err := Load(); err == nil {
		t.Fatal("culled before warning should fail validation")
	}
}
