package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LogDir: "/var/lib/drivemeta/log",
		Server: ServerConfig{ListenAddr: "127.0.0.1:9090"},
		Database: DatabaseConfig{
			Path:          "/var/lib/drivemeta/drivemeta.db",
			BusyTimeoutMs: 2500,
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Server.ListenAddr != original.Server.ListenAddr {
		t.Errorf("Server.ListenAddr = %q, want %q", got.Server.ListenAddr, original.Server.ListenAddr)
	}
	if got.Database.Path != original.Database.Path {
		t.Errorf("Database.Path = %q, want %q", got.Database.Path, original.Database.Path)
	}
	if got.Database.BusyTimeoutMs != original.Database.BusyTimeoutMs {
		t.Errorf("Database.BusyTimeoutMs = %d, want %d", got.Database.BusyTimeoutMs, original.Database.BusyTimeoutMs)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/drivemeta")

	if cfg.LogDir != "/data/drivemeta/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/drivemeta/log")
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Database.Path != "/data/drivemeta/drivemeta.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/data/drivemeta/drivemeta.db")
	}
	if cfg.Database.BusyTimeoutMs != 5000 {
		t.Errorf("Database.BusyTimeoutMs = %d, want 5000", cfg.Database.BusyTimeoutMs)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "drivemeta.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "drivemeta.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "drivemeta.toml")
		cfg := NewConfig(dir)
		cfg.Server.ListenAddr = ":7070"

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Server.ListenAddr != ":7070" {
			t.Errorf("Server.ListenAddr = %q, want %q", got.Server.ListenAddr, ":7070")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/drivemeta.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
