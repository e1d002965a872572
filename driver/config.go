// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package driver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/sandbox/voxel"
)

// ErrInvalidConfig is returned for configuration values out of range.
var ErrInvalidConfig = errors.New("driver: invalid config")

// Cell is a voxel position in a chunk.
type Cell struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// Config controls the frame loop. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// DispatchEvery is the dispatch cadence in frames. Frame 0 dispatches.
	DispatchEvery int `yaml:"dispatch_every"`

	// Frames bounds Run. Zero runs until the context ends or exit is
	// requested.
	Frames int `yaml:"frames"`

	// FrameRate paces Run in frames per second. Zero runs unpaced.
	FrameRate int `yaml:"frame_rate"`

	// Program names the compute program (see shaders.Names).
	Program string `yaml:"program"`

	// Backend names the device backend (auto, cpu, gpu, vulkan, ...).
	Backend string `yaml:"backend"`

	// Feedback dispatches each result instead of the seed.
	Feedback bool `yaml:"feedback"`

	// ResultTimeoutFrames logs a warning when a dispatch stays unresolved
	// for this many frames. Zero disables the warning.
	ResultTimeoutFrames int `yaml:"result_timeout_frames"`

	// Seed lists the sand cells of the initial chunk.
	Seed []Cell `yaml:"seed"`

	// CPULatency is the number of polls the CPU device waits before
	// completing a mapping.
	CPULatency int `yaml:"cpu_latency"`

	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the classic sandbox setup: one sand voxel at
// (0, 1, 0), dispatched every 240 frames at 60 frames per second.
func DefaultConfig() Config {
	return Config{
		DispatchEvery:       240,
		FrameRate:           60,
		Program:             "identity",
		Backend:             "auto",
		ResultTimeoutFrames: 120,
		Seed:                []Cell{{X: 0, Y: 1, Z: 0}},
		LogLevel:            "info",
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the
// result.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("driver: load config: %w", err)
	}
	defer f.Close()

	cfg, err := DecodeConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("driver: load config %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig decodes YAML from r on top of DefaultConfig. Unknown keys
// are rejected.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("driver: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first value out of range.
func (c *Config) Validate() error {
	switch {
	case c.DispatchEvery < 1:
		return fmt.Errorf("%w: dispatch_every %d, want >= 1", ErrInvalidConfig, c.DispatchEvery)
	case c.Frames < 0:
		return fmt.Errorf("%w: frames %d, want >= 0", ErrInvalidConfig, c.Frames)
	case c.FrameRate < 0:
		return fmt.Errorf("%w: frame_rate %d, want >= 0", ErrInvalidConfig, c.FrameRate)
	case c.ResultTimeoutFrames < 0:
		return fmt.Errorf("%w: result_timeout_frames %d, want >= 0", ErrInvalidConfig, c.ResultTimeoutFrames)
	case c.CPULatency < 0:
		return fmt.Errorf("%w: cpu_latency %d, want >= 0", ErrInvalidConfig, c.CPULatency)
	}
	if _, err := c.SeedChunk(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// SeedChunk builds the initial chunk from Seed.
func (c *Config) SeedChunk() (voxel.Chunk, error) {
	var ch voxel.Chunk
	for _, p := range c.Seed {
		if !voxel.InBounds(p.X, p.Y, p.Z) {
			return voxel.Chunk{}, fmt.Errorf("%w: seed cell (%d,%d,%d) out of bounds",
				ErrInvalidConfig, p.X, p.Y, p.Z)
		}
		ch.Set(p.X, p.Y, p.Z, voxel.Sand)
	}
	return ch, nil
}

// Level parses LogLevel. An empty level is Info.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}
