package chunker_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quarryhq/quarry/pkg/chunker"
)

var _ = Describe("Chunker", func() {
	Describe("New", func() {
		It("rejects a non-positive size", func() {
			_, err := chunker.New(0, 0)
			Expect(err).To(HaveOccurred())

			_, err = chunker.New(-5, 0)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a negative overlap", func() {
			_, err := chunker.New(10, -1)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an overlap equal to or larger than the size", func() {
			_, err := chunker.New(10, 10)
			Expect(err).To(HaveOccurred())

			_, err = chunker.New(10, 12)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Chunk", func() {
		It("splits with exact overlap boundaries", func() {
			c, err := chunker.New(4, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Chunk("ABCDEFGHIJ")).To(Equal([]string{"ABCD", "DEFG", "GHIJ"}))
		})

		It("yields zero spans for empty text", func() {
			c, err := chunker.New(4, 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Chunk("")).To(BeEmpty())
		})

		It("returns a single span when the text fits", func() {
			c, err := chunker.New(100, 10)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Chunk("short text")).To(Equal([]string{"short text"}))
		})

		It("keeps trailing content in a shorter final span", func() {
			c, err := chunker.New(4, 1)
			Expect(err).NotTo(HaveOccurred())

			spans := c.Chunk("ABCDE")
			Expect(spans).To(Equal([]string{"ABCD", "DE"}))
		})

		It("counts runes rather than bytes", func() {
			c, err := chunker.New(4, 1)
			Expect(err).NotTo(HaveOccurred())

			spans := c.Chunk("héllo wörld")
			for _, span := range spans {
				Expect(len([]rune(span))).To(BeNumerically("<=", 4))
			}
			Expect(spans[0]).To(Equal("héll"))
		})

		It("is deterministic for the same input and config", func() {
			c, err := chunker.New(7, 3)
			Expect(err).NotTo(HaveOccurred())

			text := strings.Repeat("the quick brown fox ", 20)
			first := c.Chunk(text)
			second := c.Chunk(text)
			Expect(second).To(Equal(first))
		})

		It("reconstructs the original text when overlap is trimmed", func() {
			c, err := chunker.New(16, 4)
			Expect(err).NotTo(HaveOccurred())

			text := strings.Repeat("abcdefghij", 13)
			spans := c.Chunk(text)
			Expect(spans).NotTo(BeEmpty())

			var b strings.Builder
			b.WriteString(spans[0])
			for _, span := range spans[1:] {
				runes := []rune(span)
				b.WriteString(string(runes[c.Overlap():]))
			}
			Expect(b.String()).To(Equal(text))
		})
	})
})
