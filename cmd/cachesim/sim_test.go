// Package main provides end-to-end tests for the cachesim CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/config"
)

func TestSim(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sim Suite")
}

var _ = Describe("cachesim", func() {
	writeTrace := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "trace.txt")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	runSim := func(args ...string) (string, error) {
		var buf bytes.Buffer
		err := run(args, &buf)
		return buf.String(), err
	}

	Describe("Report shape", func() {
		It("should print configuration, contents, and measurements", func() {
			tracePath := writeTrace("r 0\n")
			out, err := runSim("4", "8", "2", "0", "0", "0", "0", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("===== Simulator configuration =====\n"))
			Expect(out).To(ContainSubstring("BLOCKSIZE:  4\n"))
			Expect(out).To(ContainSubstring("L1_SIZE:    8\n"))
			Expect(out).To(ContainSubstring("trace_file: " + tracePath + "\n"))
			Expect(out).To(ContainSubstring("===== L1 contents =====\n"))
			Expect(out).NotTo(ContainSubstring("===== L2 contents ====="))
			Expect(out).To(ContainSubstring("===== Measurements =====\n"))
			Expect(out).To(ContainSubstring("j. L2 reads (prefetch):        0\n"))
			Expect(out).To(ContainSubstring("k. L2 read misses (prefetch):  0\n"))
		})
	})

	Describe("Cold read misses, L1 only", func() {
		It("should miss three times and keep the last two blocks", func() {
			tracePath := writeTrace("r 0\nr 10\nr 20\n")
			out, err := runSim("4", "8", "2", "0", "0", "0", "0", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("a. L1 reads:                   3\n"))
			Expect(out).To(ContainSubstring("b. L1 read misses:             3\n"))
			Expect(out).To(ContainSubstring("e. L1 miss rate:               1.0000\n"))
			Expect(out).To(ContainSubstring("f. L1 writebacks:              0\n"))
			Expect(out).To(ContainSubstring("q. memory traffic:             3\n"))
			Expect(out).To(ContainSubstring("set      0:        8        4\n"))
		})
	})

	Describe("Dirty eviction", func() {
		It("should write back the dirty block", func() {
			tracePath := writeTrace("w 0\nw 10\nr 20\n")
			out, err := runSim("4", "8", "2", "0", "0", "0", "0", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("a. L1 reads:                   1\n"))
			Expect(out).To(ContainSubstring("b. L1 read misses:             1\n"))
			Expect(out).To(ContainSubstring("c. L1 writes:                  2\n"))
			Expect(out).To(ContainSubstring("d. L1 write misses:            2\n"))
			Expect(out).To(ContainSubstring("f. L1 writebacks:              1\n"))
			Expect(out).To(ContainSubstring("q. memory traffic:             4\n"))
			Expect(out).To(ContainSubstring("set      0:        8        4 D\n"))
		})
	})

	Describe("Hit promotion", func() {
		It("should keep the re-read block away from eviction", func() {
			tracePath := writeTrace("r 0\nr 10\nr 20\nr 30\nr 10\nr 40\n")
			out, err := runSim("4", "16", "4", "0", "0", "0", "0", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("a. L1 reads:                   6\n"))
			Expect(out).To(ContainSubstring("b. L1 read misses:             5\n"))
			// Block 0 was the LRU when block 0x40 arrived.
			Expect(out).To(ContainSubstring("set      0:       10        4        c        8\n"))
		})
	})

	Describe("Stream-buffer prefetching", func() {
		It("should fill a stream on a cold miss", func() {
			tracePath := writeTrace("r 0\n")
			out, err := runSim("4", "4", "1", "0", "0", "1", "4", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("b. L1 read misses:             1\n"))
			Expect(out).To(ContainSubstring("g. L1 prefetches:              4\n"))
		})

		It("should suppress the miss counter on a stream hit", func() {
			tracePath := writeTrace("r 0\nr 4\n")
			out, err := runSim("4", "4", "1", "0", "0", "1", "4", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("a. L1 reads:                   2\n"))
			Expect(out).To(ContainSubstring("b. L1 read misses:             1\n"))
			Expect(out).To(ContainSubstring("e. L1 miss rate:               0.5000\n"))
			Expect(out).To(ContainSubstring("g. L1 prefetches:              5\n"))
			Expect(out).To(ContainSubstring("q. memory traffic:             1\n"))
			// The stream-supplied block still entered the cache.
			Expect(out).To(ContainSubstring("set      0:        1\n"))
		})

		It("should count the miss when the config file says so", func() {
			cfgPath := filepath.Join(GinkgoT().TempDir(), "sim.json")
			fileCfg := config.Default()
			fileCfg.CountPrefetchHit = true
			Expect(fileCfg.Save(cfgPath)).To(Succeed())

			old := *configPath
			*configPath = cfgPath
			defer func() { *configPath = old }()

			tracePath := writeTrace("r 0\nr 4\n")
			out, err := runSim("4", "4", "1", "0", "0", "1", "4", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("b. L1 read misses:             2\n"))
			Expect(out).To(ContainSubstring("g. L1 prefetches:              5\n"))
		})
	})

	Describe("Two-level hierarchy", func() {
		It("should route misses and writebacks through L2", func() {
			tracePath := writeTrace("w 0\nw 10\nr 20\n")
			out, err := runSim("4", "8", "2", "64", "2", "0", "0", tracePath)
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("===== L2 contents =====\n"))
			Expect(out).To(ContainSubstring("f. L1 writebacks:              1\n"))
			Expect(out).To(ContainSubstring("h. L2 reads (demand):          3\n"))
			Expect(out).To(ContainSubstring("i. L2 read misses (demand):    3\n"))
			Expect(out).To(ContainSubstring("l. L2 writes:                  1\n"))
			Expect(out).To(ContainSubstring("m. L2 write misses:            0\n"))
			Expect(out).To(ContainSubstring("n. L2 miss rate:               0.7500\n"))
			Expect(out).To(ContainSubstring("q. memory traffic:             3\n"))
		})
	})

	Describe("Failure modes", func() {
		It("should fail on a wrong argument count", func() {
			_, err := runSim("4", "8", "2")
			Expect(err).To(MatchError(ContainSubstring("8 command-line arguments")))
		})

		It("should fail on an invalid geometry", func() {
			tracePath := writeTrace("r 0\n")
			_, err := runSim("3", "8", "2", "0", "0", "0", "0", tracePath)
			Expect(err).To(MatchError(ContainSubstring("BLOCKSIZE")))
		})

		It("should fail on an unopenable trace file", func() {
			_, err := runSim("4", "8", "2", "0", "0", "0", "0", "/no/such/trace.txt")
			Expect(err).To(MatchError(ContainSubstring("unable to open file")))
		})

		It("should fail on a malformed trace line", func() {
			tracePath := writeTrace("r 0\nz 10\n")
			_, err := runSim("4", "8", "2", "0", "0", "0", "0", tracePath)
			Expect(err).To(MatchError(ContainSubstring("unknown request type")))
		})
	})
})
