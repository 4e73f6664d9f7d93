package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MT.HotThreshold != 50 {
		t.Errorf("Expected HotThreshold=50, got %d", cfg.MT.HotThreshold)
	}
	if cfg.MT.SidetraceThreshold != 5 {
		t.Errorf("Expected SidetraceThreshold=5, got %d", cfg.MT.SidetraceThreshold)
	}
	if cfg.MT.TraceFailureThreshold != 5 {
		t.Errorf("Expected TraceFailureThreshold=5, got %d", cfg.MT.TraceFailureThreshold)
	}
	if cfg.MT.MaxTraceBlocks != 20000 {
		t.Errorf("Expected MaxTraceBlocks=20000, got %d", cfg.MT.MaxTraceBlocks)
	}

	if cfg.CompileQueue.MaxWorkers != 0 {
		t.Errorf("Expected MaxWorkers=0 (auto), got %d", cfg.CompileQueue.MaxWorkers)
	}
	if cfg.CompileQueue.SerialiseCompilation {
		t.Error("Expected SerialiseCompilation=false")
	}

	if cfg.Decoder.ReturnStackCapacity != 64 {
		t.Errorf("Expected ReturnStackCapacity=64, got %d", cfg.Decoder.ReturnStackCapacity)
	}

	if cfg.API.Port != 8737 {
		t.Errorf("Expected API.Port=8737, got %d", cfg.API.Port)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}

	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path to end with config.toml, got %s", path)
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "config.toml" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}

	case "darwin", "linux":
		dir := filepath.Dir(path)
		if filepath.Base(dir) != "yk-mt" && path != "config.toml" {
			t.Errorf("Expected path in yk-mt directory or fallback, got %s", path)
		}
	}
}

func TestGetLogPath(t *testing.T) {
	path := GetLogPath()

	if path == "" {
		t.Error("GetLogPath returned empty string")
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "logs" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}

	case "darwin", "linux":
		if filepath.Base(path) != "logs" {
			t.Errorf("Expected path to end with logs, got %s", path)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.toml")

	cfg := DefaultConfig()
	cfg.MT.HotThreshold = 200
	cfg.CompileQueue.SerialiseCompilation = true
	cfg.Decoder.SegmentCacheEntries = 512
	cfg.API.Port = 9001

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.MT.HotThreshold != 200 {
		t.Errorf("Expected HotThreshold=200, got %d", loaded.MT.HotThreshold)
	}
	if !loaded.CompileQueue.SerialiseCompilation {
		t.Error("Expected SerialiseCompilation=true")
	}
	if loaded.Decoder.SegmentCacheEntries != 512 {
		t.Errorf("Expected SegmentCacheEntries=512, got %d", loaded.Decoder.SegmentCacheEntries)
	}
	if loaded.API.Port != 9001 {
		t.Errorf("Expected API.Port=9001, got %d", loaded.API.Port)
	}
}

func TestLoadNonExistent(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nonexistent.toml")

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom should not error on non-existent file: %v", err)
	}

	if cfg.MT.HotThreshold != 50 {
		t.Error("Expected default config when file doesn't exist")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.toml")

	invalidTOML := `
[mt]
hot_threshold = "not a number"  # Invalid: should be uint32
`
	if err := os.WriteFile(configPath, []byte(invalidTOML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	_, err := LoadFrom(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid TOML")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "subdir1", "subdir2", "config.toml")

	cfg := DefaultConfig()
	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	dir := filepath.Dir(configPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("Parent directories were not created")
	}
}
