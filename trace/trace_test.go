package trace_test

import (
	"io"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/trace"
)

func TestTrace(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Trace Suite")
}

var _ = Describe("Reader", func() {
	It("should read requests in file order", func() {
		r := trace.NewReader(strings.NewReader("r ffe04540\nw 4540\nr 0\n"))

		req, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(req).To(Equal(trace.Request{Kind: trace.Read, Addr: 0xffe04540}))

		req, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(req).To(Equal(trace.Request{Kind: trace.Write, Addr: 0x4540}))

		req, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(req).To(Equal(trace.Request{Kind: trace.Read, Addr: 0x0}))

		_, err = r.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("should skip blank lines", func() {
		r := trace.NewReader(strings.NewReader("\nr 10\n\n"))

		req, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Addr).To(Equal(uint32(0x10)))

		_, err = r.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("should fail on an unknown request type", func() {
		r := trace.NewReader(strings.NewReader("r 10\nx 20\n"))

		_, err := r.Next()
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Next()
		Expect(err).To(MatchError(ContainSubstring("unknown request type")))
		Expect(err).To(MatchError(ContainSubstring("line 2")))
	})

	It("should fail on a malformed address", func() {
		r := trace.NewReader(strings.NewReader("r xyz\n"))
		_, err := r.Next()
		Expect(err).To(MatchError(ContainSubstring("bad address")))
	})

	It("should fail on an address wider than 32 bits", func() {
		r := trace.NewReader(strings.NewReader("r 100000000\n"))
		_, err := r.Next()
		Expect(err).To(HaveOccurred())
	})

	It("should fail on a wrong field count", func() {
		r := trace.NewReader(strings.NewReader("r 10 20\n"))
		_, err := r.Next()
		Expect(err).To(MatchError(ContainSubstring("expected 2 fields")))
	})

	It("should count consumed lines", func() {
		r := trace.NewReader(strings.NewReader("r 1\nw 2\n"))
		r.Next()
		r.Next()
		Expect(r.Line()).To(Equal(2))
	})
})
