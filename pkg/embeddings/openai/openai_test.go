package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quarryhq/quarry/pkg/embeddings/openai"
)

var _ = Describe("Embedder", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requires an API key", func() {
		_, err := openai.NewEmbedder(openai.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("reorders responses by index to match input order", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/embeddings"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))

			// Respond out of order on purpose.
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"index": 1, "embedding": []float32{0, 1}},
					{"index": 0, "embedding": []float32{1, 0}},
				},
			})
		}))
		defer server.Close()

		embedder, err := openai.NewEmbedder(openai.Config{
			BaseURL: server.URL,
			APIKey:  "test-key",
		})
		Expect(err).NotTo(HaveOccurred())

		vectors, err := embedder.EmbedBatch(ctx, []string{"first", "second"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(Equal([][]float32{{1, 0}, {0, 1}}))
	})

	It("uses the Azure endpoint layout and api-key header", func() {
		var gotPath, gotAPIKey, gotVersion string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAPIKey = r.Header.Get("api-key")
			gotVersion = r.URL.Query().Get("api-version")

			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"index": 0, "embedding": []float32{1}},
				},
			})
		}))
		defer server.Close()

		embedder, err := openai.NewEmbedder(openai.Config{
			BaseURL: server.URL,
			APIKey:  "azure-key",
			Model:   "embedding-deployment",
			Azure:   true,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(ctx, "text")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotPath).To(Equal("/openai/deployments/embedding-deployment/embeddings"))
		Expect(gotAPIKey).To(Equal("azure-key"))
		Expect(gotVersion).To(Equal(openai.DefaultAzureAPIVersion))
	})
})
