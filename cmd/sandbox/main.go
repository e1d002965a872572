// Command sandbox runs the voxel compute frame loop headless.
//
// Every -every frames the working chunk is dispatched to the compute
// program; results are polled once per frame and logged.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/sandbox"
	"github.com/gogpu/sandbox/driver"
	"github.com/gogpu/sandbox/voxel"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		frames     = flag.Int("frames", 0, "frames to run (0 = until interrupted)")
		every      = flag.Int("every", 240, "dispatch cadence in frames")
		program    = flag.String("program", "identity", "compute program (identity, sandfall)")
		backend    = flag.String("backend", "auto", "device backend (auto, cpu, gpu, vulkan, metal, dx12, gl)")
		feedback   = flag.Bool("feedback", false, "dispatch each result instead of the seed")
		fps        = flag.Int("fps", 60, "frame rate (0 = unpaced)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	cfg := driver.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = driver.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "frames":
			cfg.Frames = *frames
		case "every":
			cfg.DispatchEvery = *every
		case "program":
			cfg.Program = *program
		case "backend":
			cfg.Backend = *backend
		case "feedback":
			cfg.Feedback = *feedback
		case "fps":
			cfg.FrameRate = *fps
		case "v":
			if *verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	level, _ := cfg.Level()
	sandbox.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	sb, err := sandbox.Open(
		sandbox.WithBackend(cfg.Backend),
		sandbox.WithProgram(cfg.Program),
		sandbox.WithCPULatency(cfg.CPULatency),
	)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer sb.Close()

	d, err := driver.New(sb.Engine(), cfg, driver.WithResultHandler(printResult))
	if err != nil {
		sb.Close()
		log.Fatalf("driver: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := d.Run(ctx); err != nil {
		sb.Close()
		log.Fatalf("run: %v", err)
	}

	st := d.Stats()
	es := sb.Engine().Stats()
	log.Printf("%d frames, %d dispatches (%d rejected), %d results, %d failures on %s",
		st.Frames, st.Dispatches, st.Rejected, st.Results, st.Failures, sb.Backend())
	log.Printf("engine: dispatched=%d completed=%d failed=%d dropped=%d",
		es.Dispatched, es.Completed, es.Failed, es.Dropped)
}

func printResult(frame uint64, c voxel.Chunk) {
	fmt.Printf("frame %d: %d sand, sum %016x\n%s\n", frame, c.Count(voxel.Sand), c.Sum64(), c.String())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
