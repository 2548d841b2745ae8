package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/agent"
	"github.com/quarryhq/quarry/pkg/chunker"
	"github.com/quarryhq/quarry/pkg/ingest"
	"github.com/quarryhq/quarry/pkg/query"
	"github.com/quarryhq/quarry/pkg/vector/memory"
)

// apiTestEmbedder returns a constant vector so search results are stable.
type apiTestEmbedder struct{}

func (apiTestEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e apiTestEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (apiTestEmbedder) Dimensions() int { return 2 }
func (apiTestEmbedder) Close() error    { return nil }

var _ = Describe("Server", func() {
	var (
		server *Server
		store  *memory.Store
	)

	BeforeEach(func() {
		store = memory.NewStore()
		embedder := apiTestEmbedder{}

		ck, err := chunker.New(50, 10)
		Expect(err).NotTo(HaveOccurred())

		pipeline, err := ingest.NewPipeline(ck, embedder, store, nil, zap.NewNop(), ingest.Config{})
		Expect(err).NotTo(HaveOccurred())

		registry := agent.NewDefaultRegistry(embedder, store)
		engine, err := agent.NewEngine(registry, nil, zap.NewNop(), 0)
		Expect(err).NotTo(HaveOccurred())

		router, err := query.NewRouter(embedder, store, engine, zap.NewNop(), "documents")
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{ListenAddr: ":0", Collection: "documents"}, pipeline, router, store, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	do := func(req *http.Request) (*http.Response, map[string]any) {
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		var decoded map[string]any
		if len(body) > 0 {
			Expect(json.Unmarshal(body, &decoded)).To(Succeed())
		}
		return resp, decoded
	}

	uploadRequest := func(filename, content, fileID string) *http.Request {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())

		if fileID != "" {
			Expect(writer.WriteField("file_id", fileID)).To(Succeed())
		}
		Expect(writer.Close()).To(Succeed())

		req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req
	}

	queryRequest := func(path string, body map[string]any) *http.Request {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	It("reports health", func() {
		resp, body := do(httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal("UP"))
	})

	Describe("uploading", func() {
		It("ingests a document and derives a file id from its content", func() {
			content := "the quick brown fox jumps over the lazy dog"
			resp, body := do(uploadRequest("notes.txt", content, ""))

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(body["file_id"]).To(Equal(ingest.FileID([]byte(content))))
			Expect(body["stage"]).To(Equal(string(ingest.StageComplete)))
			Expect(body["chunk_count"]).To(BeNumerically(">", 0))
		})

		It("honors an explicit file id", func() {
			resp, body := do(uploadRequest("notes.txt", "some content", "my-doc"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(body["file_id"]).To(Equal("my-doc"))
		})

		It("rejects unsupported file types", func() {
			resp, body := do(uploadRequest("image.webp", "RIFF....WEBP", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("unsupported"))
		})

		It("rejects requests without a file field", func() {
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			resp, _ := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("inventory endpoints", func() {
		BeforeEach(func() {
			resp, _ := do(uploadRequest("a.txt", "first document body text", "doc-a"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			resp, _ = do(uploadRequest("b.txt", "second document body text", "doc-b"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("lists file ids", func() {
			resp, body := do(httptest.NewRequest(http.MethodGet, "/ids", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeEquivalentTo(2))
			Expect(body["file_ids"]).To(ConsistOf("doc-a", "doc-b"))
		})

		It("counts chunks", func() {
			resp, body := do(httptest.NewRequest(http.MethodGet, "/count", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["count"]).To(BeNumerically(">", 0))
		})

		It("reports stats", func() {
			resp, body := do(httptest.NewRequest(http.MethodGet, "/stats", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["collection"]).To(Equal("documents"))
			Expect(body["documents"]).To(BeEquivalentTo(2))
			Expect(body["chunks"]).To(BeNumerically(">", 0))
		})

		It("deletes a document", func() {
			resp, body := do(httptest.NewRequest(http.MethodDelete, "/documents/doc-a", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["deleted"]).To(BeTrue())

			_, ids := do(httptest.NewRequest(http.MethodGet, "/ids", nil))
			Expect(ids["file_ids"]).To(ConsistOf("doc-b"))
		})
	})

	Describe("querying", func() {
		BeforeEach(func() {
			resp, _ := do(uploadRequest("guide.txt", "deployments run through the staging cluster first", "guide"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("serves semantic queries", func() {
			resp, body := do(queryRequest("/query", map[string]any{"query": "how are deployments done"}))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["mode"]).To(Equal(string(query.ModeSemantic)))

			hits, ok := body["hits"].([]any)
			Expect(ok).To(BeTrue())
			Expect(hits).NotTo(BeEmpty())

			first, ok := hits[0].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(first["file_id"]).To(Equal("guide"))
			Expect(fmt.Sprint(first["text"])).To(ContainSubstring("staging"))
		})

		It("forces agentic mode on the agentic route", func() {
			resp, body := do(queryRequest("/query/agentic", map[string]any{
				"query": "how are deployments done",
				"mode":  "semantic",
			}))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["mode"]).To(Equal(string(query.ModeAgentic)))

			agentic, ok := body["agentic"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(agentic["answer"]).To(ContainSubstring("staging"))
			Expect(agentic["steps"]).NotTo(BeEmpty())
		})

		It("rejects empty queries", func() {
			resp, body := do(queryRequest("/query", map[string]any{"query": "  "}))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("query"))
		})

		It("rejects invalid top_k", func() {
			resp, _ := do(queryRequest("/query", map[string]any{"query": "q", "top_k": -2}))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
