// Package main provides the cachesim command-line interface.
//
// Invocation:
//
//	cachesim [options] BLOCKSIZE L1_SIZE L1_ASSOC L2_SIZE L2_ASSOC PREF_N PREF_M trace_file
//
// L2_SIZE 0 disables L2; PREF_N 0 or PREF_M 0 disables the prefetcher.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/memsys"
	"github.com/sarchlab/cachesim/memsys/cache"
	"github.com/sarchlab/cachesim/trace"
)

var (
	configPath = flag.String("config", "",
		"Path to a JSON config file supplying behavior switches")
	verbose = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr,
			"Usage: cachesim [options] BLOCKSIZE L1_SIZE L1_ASSOC L2_SIZE L2_ASSOC PREF_N PREF_M trace_file\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses the positional arguments, simulates the trace, and writes the
// report to w.
func run(args []string, w io.Writer) error {
	cfg, err := config.ParseArgs(args)
	if err != nil {
		return err
	}

	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg.CountPrefetchHit = fileCfg.CountPrefetchHit
		cfg.PrefetchAttach = fileCfg.PrefetchAttach
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	h, err := memsys.Build(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("unable to open file %s", cfg.TraceFile)
	}
	defer f.Close()

	printConfiguration(w, cfg)

	if *verbose {
		printGeometry(w, h.L1())
		if h.L2() != nil {
			printGeometry(w, h.L2())
		}
	}

	reader := trace.NewReader(f)
	for {
		req, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		h.Feed(req.Addr, req.Kind)
	}

	printContents(w, "L1", h.L1())
	if h.L2() != nil {
		fmt.Fprintf(w, "\n")
		printContents(w, "L2", h.L2())
	}
	printMeasurements(w, h)

	return nil
}

func printConfiguration(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "===== Simulator configuration =====\n")
	fmt.Fprintf(w, "BLOCKSIZE:  %d\n", cfg.BlockSize)
	fmt.Fprintf(w, "L1_SIZE:    %d\n", cfg.L1Size)
	fmt.Fprintf(w, "L1_ASSOC:   %d\n", cfg.L1Assoc)
	fmt.Fprintf(w, "L2_SIZE:    %d\n", cfg.L2Size)
	fmt.Fprintf(w, "L2_ASSOC:   %d\n", cfg.L2Assoc)
	fmt.Fprintf(w, "PREF_N:     %d\n", cfg.PrefN)
	fmt.Fprintf(w, "PREF_M:     %d\n", cfg.PrefM)
	fmt.Fprintf(w, "trace_file: %s\n", cfg.TraceFile)
}

func printGeometry(w io.Writer, lvl *cache.Level) {
	cfg := lvl.Config()
	fmt.Fprintf(w, "%s: sets=%d assoc=%d tag_bits=%d index_bits=%d offset_bits=%d\n",
		cfg.Name, lvl.NumSets(), cfg.Assoc,
		lvl.TagBits(), lvl.IndexBits(), lvl.OffsetBits())
}

func printContents(w io.Writer, name string, lvl *cache.Level) {
	fmt.Fprintf(w, "===== %s contents =====\n", name)
	for _, sc := range lvl.Contents() {
		fmt.Fprintf(w, "set %6d:", sc.Set)
		for _, line := range sc.Lines {
			fmt.Fprintf(w, " %8x", line.Tag)
			if line.Dirty {
				fmt.Fprintf(w, " D")
			}
		}
		fmt.Fprintf(w, "\n")
	}
}

func printMeasurements(w io.Writer, h *memsys.Hierarchy) {
	l1 := h.L1().Stats()

	// A missing L2 reports all zeros.
	var l2 cache.Statistics
	if h.L2() != nil {
		l2 = h.L2().Stats()
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "===== Measurements =====\n")
	fmt.Fprintf(w, "a. L1 reads:                   %d\n", l1.Reads)
	fmt.Fprintf(w, "b. L1 read misses:             %d\n", l1.ReadMisses)
	fmt.Fprintf(w, "c. L1 writes:                  %d\n", l1.Writes)
	fmt.Fprintf(w, "d. L1 write misses:            %d\n", l1.WriteMisses)
	fmt.Fprintf(w, "e. L1 miss rate:               %.4f\n", l1.MissRate())
	fmt.Fprintf(w, "f. L1 writebacks:              %d\n", l1.Writebacks)
	fmt.Fprintf(w, "g. L1 prefetches:              %d\n", l1.Prefetches)
	fmt.Fprintf(w, "h. L2 reads (demand):          %d\n", l2.Reads)
	fmt.Fprintf(w, "i. L2 read misses (demand):    %d\n", l2.ReadMisses)
	fmt.Fprintf(w, "j. L2 reads (prefetch):        0\n")
	fmt.Fprintf(w, "k. L2 read misses (prefetch):  0\n")
	fmt.Fprintf(w, "l. L2 writes:                  %d\n", l2.Writes)
	fmt.Fprintf(w, "m. L2 write misses:            %d\n", l2.WriteMisses)
	fmt.Fprintf(w, "n. L2 miss rate:               %.4f\n", l2.MissRate())
	fmt.Fprintf(w, "o. L2 writebacks:              %d\n", l2.Writebacks)
	fmt.Fprintf(w, "p. L2 prefetches:              %d\n", l2.Prefetches)
	fmt.Fprintf(w, "q. memory traffic:             %d\n", h.MemoryTraffic())
}
