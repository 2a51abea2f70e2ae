package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
feed:
  mode: multicast
  multicast:
    - group: 225.0.140.140
      port: 14000
recovery:
  primary:
    ip: 10.3.1.1
    port: 10000
    session_id: 777
    password: 1234
  backup:
    ip: 10.3.1.2
    port: 10000
    session_id: 777
    password: 1234
capture:
  enabled: true
  directory: /tmp/capture
dashboard:
  enabled: true
metrics:
  enabled: true
  region: ap-northeast-1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recovery.Primary == nil || cfg.Recovery.Primary.SessionID != 777 {
		t.Fatalf("primary = %+v", cfg.Recovery.Primary)
	}
	if !cfg.Recovery.Enabled() {
		t.Fatal("recovery should be enabled")
	}
	if cfg.Recovery.RecvTimeout != time.Second {
		t.Fatalf("recv timeout default = %v", cfg.Recovery.RecvTimeout)
	}
	if cfg.Recovery.ReconnectDelay != 5*time.Second {
		t.Fatalf("reconnect delay default = %v", cfg.Recovery.ReconnectDelay)
	}
	if cfg.Capture.Depth != 5 || cfg.Capture.BatchSize != 500 {
		t.Fatalf("capture defaults = %+v", cfg.Capture)
	}
	if cfg.Metrics.Namespace != "TaifexFlow" {
		t.Fatalf("namespace default = %q", cfg.Metrics.Namespace)
	}
}

func TestLoadReplayMode(t *testing.T) {
	path := writeConfig(t, `
feed:
  mode: replay
  replay:
    path: captures/day1.bin
    pace: 100us
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.Replay.Pace != 100*time.Microsecond {
		t.Fatalf("pace = %v", cfg.Feed.Replay.Pace)
	}
	if cfg.Recovery.Enabled() {
		t.Fatal("recovery should be disabled with no servers")
	}
}

func TestLoadRejectsIncompleteMulticast(t *testing.T) {
	path := writeConfig(t, `
feed:
  mode: multicast
  multicast:
    - group: 225.0.140.140
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `
feed:
  mode: carrier-pigeon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
