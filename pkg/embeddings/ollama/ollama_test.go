package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quarryhq/quarry/pkg/embeddings"
	"github.com/quarryhq/quarry/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	newServer := func(handler http.HandlerFunc) (*httptest.Server, *ollama.Embedder) {
		server := httptest.NewServer(handler)
		DeferCleanup(server.Close)

		embedder, err := ollama.NewEmbedder(ollama.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		return server, embedder
	}

	It("sends all texts in one batched request and preserves order", func() {
		var gotInput []string
		_, embedder := newServer(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/embed"))

			var req struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			gotInput = req.Input

			json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{1, 0}, {0, 1}},
			})
		})

		vectors, err := embedder.EmbedBatch(ctx, []string{"first", "second"})
		Expect(err).NotTo(HaveOccurred())
		Expect(gotInput).To(Equal([]string{"first", "second"}))
		Expect(vectors).To(Equal([][]float32{{1, 0}, {0, 1}}))
	})

	It("records dimensions from the first response", func() {
		_, embedder := newServer(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{1, 2, 3}},
			})
		})

		Expect(embedder.Dimensions()).To(Equal(0))

		_, err := embedder.Embed(ctx, "text")
		Expect(err).NotTo(HaveOccurred())
		Expect(embedder.Dimensions()).To(Equal(3))
	})

	It("returns a transient provider error on 5xx", func() {
		_, embedder := newServer(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		})

		_, err := embedder.EmbedBatch(ctx, []string{"text"})
		Expect(err).To(MatchError(embeddings.ErrProvider))
	})

	It("returns a fatal provider error on auth failure", func() {
		_, embedder := newServer(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		})

		_, err := embedder.EmbedBatch(ctx, []string{"text"})
		Expect(err).To(MatchError(embeddings.ErrProviderFatal))
	})

	It("rejects a response with the wrong number of embeddings", func() {
		_, embedder := newServer(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{1, 0}},
			})
		})

		_, err := embedder.EmbedBatch(ctx, []string{"one", "two"})
		Expect(err).To(MatchError(embeddings.ErrProvider))
	})
})
