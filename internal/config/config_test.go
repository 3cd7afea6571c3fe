package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"urlguard/internal/features"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Repository(t *testing.T) {
	cfg, err := LoadFile("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("shipped config does not load: %v", err)
	}
	if cfg.Network.WhoisTimeout != 10*time.Second {
		t.Errorf("whois_timeout = %v", cfg.Network.WhoisTimeout)
	}
	if len(cfg.Blocking.Sources) != 2 || cfg.Blocking.Sources[0].Name != "openphish" {
		t.Errorf("sources = %+v", cfg.Blocking.Sources)
	}
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
network:
  fetch_timeout: 1500ms
features:
  ssl_mode: certificate
  index_on_failure: 0
  shorteners: [x.co]
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Network.FetchTimeout != 1500*time.Millisecond {
		t.Errorf("fetch_timeout = %v", cfg.Network.FetchTimeout)
	}
	if cfg.Network.DNSTimeout != 5*time.Second {
		t.Errorf("dns_timeout lost its default: %v", cfg.Network.DNSTimeout)
	}
	if cfg.Batch.Workers != Default().Batch.Workers {
		t.Errorf("batch.workers = %d", cfg.Batch.Workers)
	}

	opts := cfg.Options()
	want := features.Options{
		Shorteners:        []string{"x.co"},
		SSLMode:           features.SSLCertificate,
		TrafficThreshold:  100000,
		PageRankHigh:      10000,
		BacklinkThreshold: 50000,
		DNSTimeout:        5 * time.Second,
		WhoisTimeout:      10 * time.Second,
		FetchTimeout:      1500 * time.Millisecond,
		ProbeTimeout:      5 * time.Second,
	}
	if opts.IndexOnFailure == nil || *opts.IndexOnFailure != features.Suspicious {
		t.Errorf("index_on_failure = %v", opts.IndexOnFailure)
	}
	opts.IndexOnFailure = nil
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("Options mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		hint string
	}{
		{"unknown ssl mode", "features:\n  ssl_mode: pinned\n", "ssl_mode"},
		{"index out of range", "features:\n  index_on_failure: 3\n", "index_on_failure"},
		{"threshold", "ai:\n  threshold: 1.5\n", "threshold"},
		{"csv without column", "blocking:\n  sources:\n    - {name: feed, url: http://x, format: csv}\n", "target_column"},
		{"unknown key", "app:\n  queue_num: 3\n", "queue_num"},
		{"bad duration", "network:\n  dns_timeout: soon\n", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.hint) {
				t.Errorf("error %q does not mention %q", err, tt.hint)
			}
		})
	}
}

func TestLoadFile_Empty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("empty file should equal defaults (-want +got):\n%s", diff)
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}
