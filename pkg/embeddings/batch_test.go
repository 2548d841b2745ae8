package embeddings_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quarryhq/quarry/pkg/embeddings"
)

// indexEmbedder encodes each text's numeric suffix into its vector so
// ordering can be asserted, and tracks concurrent in-flight batches.
type indexEmbedder struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	failOn      string
}

func (f *indexEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *indexEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		max := f.maxInFlight.Load()
		if current <= max || f.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if text == f.failOn {
			return nil, fmt.Errorf("%w: boom", embeddings.ErrProvider)
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, err
		}
		vectors[i] = []float32{float32(n)}
	}
	return vectors, nil
}

func (f *indexEmbedder) Dimensions() int { return 1 }
func (f *indexEmbedder) Close() error    { return nil }

var _ = Describe("EmbedAll", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	texts := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = strconv.Itoa(i)
		}
		return out
	}

	It("returns nothing for empty input", func() {
		vectors, err := embeddings.EmbedAll(ctx, &indexEmbedder{}, nil, 4, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(BeEmpty())
	})

	It("preserves input order across batches", func() {
		vectors, err := embeddings.EmbedAll(ctx, &indexEmbedder{}, texts(50), 7, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(HaveLen(50))
		for i, v := range vectors {
			Expect(v).To(Equal([]float32{float32(i)}))
		}
	})

	It("never exceeds the in-flight cap", func() {
		embedder := &indexEmbedder{}
		_, err := embeddings.EmbedAll(ctx, embedder, texts(200), 5, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(embedder.maxInFlight.Load()).To(BeNumerically("<=", int32(2)))
	})

	It("propagates the first provider error", func() {
		embedder := &indexEmbedder{failOn: "13"}
		_, err := embeddings.EmbedAll(ctx, embedder, texts(40), 4, 2)
		Expect(err).To(MatchError(embeddings.ErrProvider))
	})

	It("stops when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := embeddings.EmbedAll(cancelled, &indexEmbedder{}, texts(40), 4, 1)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})
