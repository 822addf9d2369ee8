package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
server:
  port: 9090
  host: "127.0.0.1"

database:
  host: "testdb"
  port: 5432
  user: "testuser"
  password: "testpass"
  dbname: "testdb"

render:
  ffmpegPath: "/usr/local/bin/ffmpeg"
  defaultFPS: 24
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}

	if cfg.Database.Host != "testdb" {
		t.Errorf("Expected database host testdb, got %s", cfg.Database.Host)
	}

	if cfg.Render.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("Expected custom ffmpeg path, got %s", cfg.Render.FFmpegPath)
	}

	if cfg.Render.DefaultFPS != 24 {
		t.Errorf("Expected fps 24, got %v", cfg.Render.DefaultFPS)
	}

	// Defaults fill in what the file omits.
	if cfg.Render.FrameCacheCap != 5 {
		t.Errorf("Expected default frame cache capacity 5, got %d", cfg.Render.FrameCacheCap)
	}

	if cfg.Render.DecodeTimeout != 5*time.Second {
		t.Errorf("Expected default decode timeout 5s, got %v", cfg.Render.DecodeTimeout)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}
