package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestProvider_LoadAndWatch(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")

	p, err := NewProvider(path, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Close()

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "info" || p.Current() != cfg {
		t.Fatalf("Load() = %+v", cfg.Log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 8)
	if err := p.Watch(ctx, func(c *Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("log:\n  level: debug\nupstream:\n  base_url: http://new:9000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Log.Level == "debug" && c.Upstream.BaseURL == "http://new:9000" {
				if p.Current().Log.Level != "debug" {
					t.Errorf("Current() not updated")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider("", nil); err == nil {
		t.Error("NewProvider() expected error for empty path")
	}
}

func TestProvider_LoadInvalid(t *testing.T) {
	p, _ := NewProvider(writeConfig(t, "journal:\n  type: redis\n"), nil)
	if _, err := p.Load(context.Background()); err == nil {
		t.Error("Load() expected error for invalid config")
	}
}
