package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/sandbox/compute"
	"github.com/gogpu/sandbox/shaders"
	"github.com/gogpu/sandbox/voxel"
)

func newEngine(t *testing.T, desc *compute.ProgramDescriptor, opts ...compute.CPUOption) *compute.Engine {
	t.Helper()
	eng, err := compute.New(compute.NewCPUDevice(opts...), desc)
	if err != nil {
		t.Fatalf("compute.New() error = %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func testConfig(every int) Config {
	cfg := DefaultConfig()
	cfg.DispatchEvery = every
	cfg.FrameRate = 0
	return cfg
}

func newDriver(t *testing.T, eng Engine, cfg Config, opts ...Option) *Driver {
	t.Helper()
	d, err := New(eng, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func runFrames(t *testing.T, d *Driver, n int) {
	t.Helper()
	for range n {
		if err := d.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}
}

func TestCadence(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram())

	var frames []uint64
	d := newDriver(t, eng, testConfig(4), WithResultHandler(func(f uint64, c voxel.Chunk) {
		frames = append(frames, f)
		if c.At(0, 1, 0) != voxel.Sand || c.Count(voxel.Sand) != 1 {
			t.Errorf("frame %d result =\n%s", f, c.String())
		}
	}))
	runFrames(t, d, 10)

	if fmt.Sprint(frames) != "[1 5 9]" {
		t.Errorf("result frames = %v, want [1 5 9]", frames)
	}
	st := d.Stats()
	if st.Frames != 10 || st.Dispatches != 3 || st.Results != 3 || st.Rejected != 0 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Changed != 1 {
		t.Errorf("Changed = %d, want 1 for identical results", st.Changed)
	}
}

func TestDispatchRejectedWhileInFlight(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram(), compute.WithLatency(1))
	d := newDriver(t, eng, testConfig(1))

	runFrames(t, d, 4)

	st := d.Stats()
	if st.Dispatches != 2 || st.Rejected != 2 || st.Results != 1 {
		t.Errorf("Stats() = %+v, want 2 dispatches, 2 rejected, 1 result", st)
	}
}

func TestResultTimeoutWarnsOnce(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram(), compute.WithLatency(10))
	cfg := testConfig(100)
	cfg.ResultTimeoutFrames = 3
	d := newDriver(t, eng, cfg)

	runFrames(t, d, 12)

	st := d.Stats()
	if st.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", st.Timeouts)
	}
	if st.Results != 1 {
		t.Errorf("Results = %d, want the late result delivered", st.Results)
	}
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		feedback bool
		want     voxel.Chunk
	}{
		{true, chunkWith(0, 0, 0)},
		{false, chunkWith(0, 3, 0)},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("feedback=%v", tt.feedback), func(t *testing.T) {
			eng := newEngine(t, shaders.SandfallProgram())
			cfg := testConfig(2)
			cfg.Feedback = tt.feedback
			cfg.Seed = []Cell{{X: 0, Y: 3, Z: 0}}
			d := newDriver(t, eng, cfg)

			runFrames(t, d, 6)

			if got := d.Working(); got != tt.want {
				t.Errorf("Working() =\n%s\nwant\n%s", got.String(), tt.want.String())
			}
		})
	}
}

func chunkWith(x, y, z int) voxel.Chunk {
	var c voxel.Chunk
	c.Set(x, y, z, voxel.Sand)
	return c
}

func TestIntegrityViolationStopsLoop(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram(), compute.WithFault(func(_ int, data []byte) error {
		data[5] = 7
		return nil
	}))
	d := newDriver(t, eng, testConfig(1))

	err := d.Run(context.Background())
	if !errors.Is(err, voxel.ErrIntegrity) {
		t.Fatalf("Run() error = %v, want ErrIntegrity", err)
	}
	if got := d.Stats().Frames; got != 2 {
		t.Errorf("Frames = %d, want 2", got)
	}
}

func TestMapFailureIsRecoverable(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram(), compute.WithFault(func(mapping int, _ []byte) error {
		if mapping == 0 {
			return errors.New("lost")
		}
		return nil
	}))
	d := newDriver(t, eng, testConfig(2))

	runFrames(t, d, 4)

	st := d.Stats()
	if st.Failures != 1 || st.Results != 1 {
		t.Errorf("Stats() = %+v, want 1 failure then 1 result", st)
	}
}

func TestClosedEngineStopsLoop(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram())
	d := newDriver(t, eng, testConfig(1))
	eng.Close()

	if err := d.Frame(); !errors.Is(err, compute.ErrClosed) {
		t.Errorf("Frame() error = %v, want ErrClosed", err)
	}
}

type fakeRenderer struct {
	errs        []error
	renders     int
	reconfigure int
}

func (r *fakeRenderer) Render() error {
	r.renders++
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func (r *fakeRenderer) Reconfigure() error {
	r.reconfigure++
	return nil
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantErr         error
		wantReconfigure int
	}{
		{"ok", nil, nil, 0},
		{"surface lost", fmt.Errorf("present: %w", wgpu.ErrSurfaceLost), nil, 1},
		{"out of memory", wgpu.ErrOutOfMemory, wgpu.ErrOutOfMemory, 0},
		{"device lost", wgpu.ErrDeviceLost, wgpu.ErrDeviceLost, 0},
		{"transient", errors.New("timeout"), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newEngine(t, shaders.IdentityProgram())
			r := &fakeRenderer{errs: []error{tt.err}}
			d := newDriver(t, eng, testConfig(1), WithRenderer(r))

			err := d.Frame()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Frame() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Frame() error = %v, want %v", err, tt.wantErr)
			}
			if r.renders != 1 {
				t.Errorf("renders = %d, want 1", r.renders)
			}
			if r.reconfigure != tt.wantReconfigure {
				t.Errorf("reconfigure = %d, want %d", r.reconfigure, tt.wantReconfigure)
			}
		})
	}
}

func TestHandleKey(t *testing.T) {
	tests := []struct {
		key  gpucontext.Key
		want bool
	}{
		{gpucontext.KeyEscape, true},
		{gpucontext.KeyF11, true},
		{gpucontext.KeyR, true},
		{gpucontext.KeySpace, false},
	}
	for _, tt := range tests {
		eng := newEngine(t, shaders.IdentityProgram())
		d := newDriver(t, eng, testConfig(1))
		if got := d.HandleKey(tt.key, 0); got != tt.want {
			t.Errorf("HandleKey(%d) = %v, want %v", tt.key, got, tt.want)
		}
		if got := d.Exiting(); got != (tt.key == gpucontext.KeyEscape) {
			t.Errorf("HandleKey(%d): Exiting() = %v", tt.key, got)
		}
	}
}

func TestReseedRestoresSeed(t *testing.T) {
	eng := newEngine(t, shaders.SandfallProgram())
	cfg := testConfig(2)
	cfg.Feedback = true
	cfg.Seed = []Cell{{X: 1, Y: 3, Z: 1}}
	d := newDriver(t, eng, cfg)

	runFrames(t, d, 2)
	if got := d.Working(); got != chunkWith(1, 2, 1) {
		t.Fatalf("Working() before reseed =\n%s", got.String())
	}

	d.HandleKey(gpucontext.KeyR, gpucontext.ModShift)
	runFrames(t, d, 1)
	if got := d.Working(); got != chunkWith(1, 3, 1) {
		t.Errorf("Working() after reseed =\n%s", got.String())
	}
}

// keySource records the key callback registered by Attach.
type keySource struct {
	gpucontext.NullEventSource
	onKey func(gpucontext.Key, gpucontext.Modifiers)
}

func (s *keySource) OnKeyPress(fn func(gpucontext.Key, gpucontext.Modifiers)) {
	s.onKey = fn
}

func TestAttachEscapeEndsRun(t *testing.T) {
	eng := newEngine(t, shaders.IdentityProgram())
	d := newDriver(t, eng, testConfig(1))

	src := &keySource{}
	d.Attach(src)
	if src.onKey == nil {
		t.Fatal("Attach did not register a key callback")
	}
	src.onKey(gpucontext.KeyEscape, 0)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := d.Stats().Frames; got != 0 {
		t.Errorf("Frames = %d, want 0 after Escape", got)
	}
}

func TestRunStops(t *testing.T) {
	t.Run("frame budget", func(t *testing.T) {
		eng := newEngine(t, shaders.IdentityProgram())
		cfg := testConfig(2)
		cfg.Frames = 5
		d := newDriver(t, eng, cfg)
		if err := d.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := d.Stats().Frames; got != 5 {
			t.Errorf("Frames = %d, want 5", got)
		}
	})

	t.Run("paced frame budget", func(t *testing.T) {
		eng := newEngine(t, shaders.IdentityProgram())
		cfg := testConfig(2)
		cfg.Frames = 3
		cfg.FrameRate = 1000
		d := newDriver(t, eng, cfg)
		if err := d.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := d.Stats().Frames; got != 3 {
			t.Errorf("Frames = %d, want 3", got)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		eng := newEngine(t, shaders.IdentityProgram())
		d := newDriver(t, eng, testConfig(1))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := d.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := d.Stats().Frames; got != 0 {
			t.Errorf("Frames = %d, want 0", got)
		}
	})
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("New(nil) succeeded")
	}
	eng := newEngine(t, shaders.IdentityProgram())
	cfg := DefaultConfig()
	cfg.DispatchEvery = 0
	if _, err := New(eng, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}
