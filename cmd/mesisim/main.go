// Command mesisim runs an interactive, cycle-stepped simulation of a
// multi-core MESI snooping-bus cache hierarchy driven by per-core
// memory-reference traces.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sarchlab/mesisim/bus"
	"github.com/sarchlab/mesisim/cache"
	"github.com/sarchlab/mesisim/config"
	"github.com/sarchlab/mesisim/core"
	"github.com/sarchlab/mesisim/driver"
	"github.com/sarchlab/mesisim/mem"
	"github.com/sarchlab/mesisim/trace"
)

// exit codes: 0 on clean termination, 1 for a malformed trace file,
// 2 for a coherence-protocol invariant violation.
const (
	exitClean              = 0
	exitTraceSyntax        = 1
	exitInvariantViolation = 2
)

// traceFlags collects repeated -trace flags in order, one path per
// core.
type traceFlags []string

func (t *traceFlags) String() string { return fmt.Sprint([]string(*t)) }

func (t *traceFlags) Set(value string) error {
	*t = append(*t, value)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to a JSON configuration file")
		blockSize  = flag.Int("block-size", 0, "cache line / memory block size in bytes (overrides config)")
		lines      = flag.Int("lines", 0, "lines per cache (overrides config)")
		cores      = flag.Int("cores", 0, "number of cores (overrides config)")
		seed       = flag.Int64("seed", 0, "memory initialization RNG seed (overrides config)")
		waitCycles = flag.Int("wait-cycles", 0, "WaitingForMemory cycles charged per memory-backed miss (overrides config)")
		verbose    = flag.Bool("v", false, "verbose (debug-level) logging")
	)
	var traces traceFlags
	flag.Var(&traces, "trace", "trace file path for one core; repeat once per core, in core order")
	flag.Parse()

	setupLogging(*verbose)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mesisim: %v\n", err)
		return exitTraceSyntax
	}
	applyFlagOverrides(cfg, blockSize, lines, cores, seed, waitCycles, traces)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "mesisim: invalid configuration: %v\n", err)
		return exitTraceSyntax
	}

	d, err := buildDriver(cfg)
	if err != nil {
		// Everything buildDriver can fail on (a missing trace file or
		// a malformed trace line) is a trace-syntax-class condition.
		fmt.Fprintf(os.Stderr, "mesisim: %v\n", err)
		return exitTraceSyntax
	}

	if err := driver.RunREPL(d, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mesisim: %v\n", err)
		return exitInvariantViolation
	}
	return exitClean
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func applyFlagOverrides(cfg *config.Config, blockSize, lines, cores *int, seed *int64, waitCycles *int, traces traceFlags) {
	if *blockSize != 0 {
		cfg.BlockSize = *blockSize
	}
	if *lines != 0 {
		cfg.LineCount = *lines
	}
	if *cores != 0 {
		cfg.Cores = *cores
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *waitCycles != 0 {
		cfg.WaitCycles = *waitCycles
	}
	if len(traces) > 0 {
		cfg.TracePaths = traces
	}
}

// buildDriver wires a Driver out of cfg: one shared Memory and Bus,
// cfg.Cores caches, and cfg.Cores cores each reading its own trace
// file.
func buildDriver(cfg *config.Config) (*driver.Driver, error) {
	memory := mem.NewMemory(cfg.BlockSize, cfg.Seed)
	b := bus.New(memory)

	caches := make([]*cache.Cache, cfg.Cores)
	cores := make([]*core.Core, cfg.Cores)

	for i := 0; i < cfg.Cores; i++ {
		name := fmt.Sprintf("core%d", i+1)
		cacheName := fmt.Sprintf("cache%d", i+1)

		f, err := os.Open(cfg.TracePaths[i])
		if err != nil {
			return nil, fmt.Errorf("opening trace for %s: %w", name, err)
		}
		scanner, err := trace.NewScanner(f)
		closeErr := f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing trace for %s: %w", name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("closing trace for %s: %w", name, closeErr)
		}

		c := cache.New(cacheName, cfg.LineCount, cfg.BlockSize, b)
		caches[i] = c
		cores[i] = core.NewCore(name, c, scanner, cfg.WaitCycles)
	}

	return driver.New(memory, b, cores, caches), nil
}
