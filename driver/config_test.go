package driver

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/sandbox/voxel"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.DispatchEvery != 240 {
		t.Errorf("DispatchEvery = %d, want 240", cfg.DispatchEvery)
	}
	seed, err := cfg.SeedChunk()
	if err != nil {
		t.Fatalf("SeedChunk() error = %v", err)
	}
	if seed.At(0, 1, 0) != voxel.Sand || seed.Count(voxel.Sand) != 1 {
		t.Errorf("seed =\n%s", seed.String())
	}
}

func TestDecodeConfig(t *testing.T) {
	src := `
dispatch_every: 30
frames: 600
program: sandfall
backend: cpu
feedback: true
cpu_latency: 2
log_level: debug
seed:
  - {x: 1, y: 3, z: 2}
  - {x: 3, y: 3, z: 3}
`
	cfg, err := DecodeConfig(strings.NewReader(src))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.DispatchEvery != 30 || cfg.Frames != 600 || cfg.Program != "sandfall" ||
		cfg.Backend != "cpu" || !cfg.Feedback || cfg.CPULatency != 2 {
		t.Errorf("DecodeConfig() = %+v", cfg)
	}
	if cfg.FrameRate != 60 || cfg.ResultTimeoutFrames != 120 {
		t.Errorf("unset keys lost their defaults: %+v", cfg)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level() = %v, want DEBUG", l)
	}
	seed, _ := cfg.SeedChunk()
	if seed.Count(voxel.Sand) != 2 || seed.At(3, 3, 3) != voxel.Sand {
		t.Errorf("seed =\n%s", seed.String())
	}
}

func TestDecodeConfigEmpty(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeConfig(empty) error = %v", err)
	}
	if cfg.DispatchEvery != DefaultConfig().DispatchEvery {
		t.Errorf("DispatchEvery = %d, want default", cfg.DispatchEvery)
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		invalid bool
	}{
		{"unknown key", "dispatch_evry: 3\n", false},
		{"bad type", "frames: many\n", false},
		{"zero cadence", "dispatch_every: 0\n", true},
		{"negative frames", "frames: -1\n", true},
		{"negative rate", "frame_rate: -5\n", true},
		{"negative timeout", "result_timeout_frames: -1\n", true},
		{"negative latency", "cpu_latency: -2\n", true},
		{"seed out of bounds", "seed: [{x: 4, y: 0, z: 0}]\n", true},
		{"bad log level", "log_level: loud\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("DecodeConfig() succeeded")
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.invalid {
				t.Errorf("errors.Is(err, ErrInvalidConfig) = %v, want %v (err = %v)", got, tt.invalid, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	if err := os.WriteFile(path, []byte("dispatch_every: 10\nframe_rate: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DispatchEvery != 10 || cfg.FrameRate != 0 {
		t.Errorf("LoadConfig() = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) error = %v, want ErrNotExist", err)
	}
}
