package agent_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/agent"
	"github.com/quarryhq/quarry/pkg/vector"
	"github.com/quarryhq/quarry/pkg/vector/memory"
)

// fixedEmbedder returns the same vector for every text, or a fixed error.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }
func (f *fixedEmbedder) Close() error    { return nil }

var _ = Describe("Engine", func() {
	const collection = "documents"

	var (
		ctx      context.Context
		store    *memory.Store
		embedder *fixedEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.NewStore()
		embedder = &fixedEmbedder{vec: []float32{1, 0}}

		Expect(store.EnsureCollection(ctx, collection, 2)).To(Succeed())
		Expect(store.Upsert(ctx, collection, []vector.Chunk{
			{FileID: "guide", Index: 0, Text: "deploys run through the staging cluster", Embedding: []float32{1, 0}},
			{FileID: "guide", Index: 1, Text: "rollbacks use the previous manifest", Embedding: []float32{0.9, 0.1}},
			{FileID: "faq", Index: 0, Text: "support hours are nine to five", Embedding: []float32{0, 1}},
		})).To(Succeed())
	})

	newEngine := func(maxSteps int) *agent.Engine {
		registry := agent.NewDefaultRegistry(embedder, store)
		engine, err := agent.NewEngine(registry, nil, zap.NewNop(), maxSteps)
		Expect(err).NotTo(HaveOccurred())
		return engine
	}

	run := func(engine *agent.Engine, req agent.Request) *agent.Outcome {
		if req.Collection == "" {
			req.Collection = collection
		}
		if req.TopK == 0 {
			req.TopK = 5
		}
		outcome, err := engine.Run(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		return outcome
	}

	It("rejects empty queries", func() {
		_, err := newEngine(0).Run(ctx, agent.Request{Query: "   "})
		Expect(err).To(MatchError(agent.ErrEmptyQuery))
	})

	It("answers content questions with one similarity search", func() {
		outcome := run(newEngine(0), agent.Request{Query: "how do deploys work"})

		Expect(outcome.Steps).To(HaveLen(1))
		Expect(outcome.Steps[0].Tool).To(Equal(agent.ToolSimilaritySearch))
		Expect(outcome.Truncated).To(BeFalse())
		Expect(outcome.Cancelled).To(BeFalse())
		Expect(outcome.Answer).To(ContainSubstring("staging cluster"))
	})

	It("answers pure count questions with one aggregate step", func() {
		outcome := run(newEngine(0), agent.Request{Query: "How many documents are stored?"})

		Expect(outcome.Steps).To(HaveLen(1))
		Expect(outcome.Steps[0].Tool).To(Equal(agent.ToolCountAggregate))
		Expect(outcome.Answer).To(ContainSubstring("2 documents"))
		Expect(outcome.Answer).To(ContainSubstring("3 chunks"))
	})

	It("follows an aggregate with a search when the query has content words", func() {
		outcome := run(newEngine(0), agent.Request{Query: "how many documents mention rollbacks"})

		Expect(outcome.Steps).To(HaveLen(2))
		Expect(outcome.Steps[0].Tool).To(Equal(agent.ToolCountAggregate))
		Expect(outcome.Steps[1].Tool).To(Equal(agent.ToolSimilaritySearch))
		Expect(outcome.Answer).To(ContainSubstring("rollbacks"))
	})

	It("lists file ids for listing questions", func() {
		outcome := run(newEngine(0), agent.Request{Query: "list all document ids"})

		Expect(outcome.Steps).To(HaveLen(1))
		Expect(outcome.Steps[0].Tool).To(Equal(agent.ToolListFiles))
		Expect(outcome.Answer).To(ContainSubstring("faq"))
		Expect(outcome.Answer).To(ContainSubstring("guide"))
	})

	It("scopes the lookup when a file id is given", func() {
		outcome := run(newEngine(0), agent.Request{
			Query:  "when is support available",
			FileID: "faq",
		})

		Expect(outcome.Steps).To(HaveLen(1))
		Expect(outcome.Steps[0].Tool).To(Equal(agent.ToolFilterLookup))
		Expect(outcome.Answer).To(ContainSubstring("nine to five"))
		Expect(outcome.Answer).NotTo(ContainSubstring("staging"))
	})

	It("marks the outcome truncated when the step budget runs out", func() {
		outcome := run(newEngine(1), agent.Request{Query: "how many documents mention rollbacks"})

		Expect(outcome.Steps).To(HaveLen(1))
		Expect(outcome.Truncated).To(BeTrue())
		Expect(outcome.Answer).To(ContainSubstring("documents"))
	})

	It("returns an execution error when the first step fails", func() {
		embedder.err = errors.New("provider down")

		_, err := newEngine(0).Run(ctx, agent.Request{
			Query:      "how do deploys work",
			Collection: collection,
			TopK:       5,
		})
		Expect(err).To(MatchError(agent.ErrExecution))
	})

	It("keeps earlier evidence when a later step fails", func() {
		embedder.err = errors.New("provider down")

		outcome := run(newEngine(0), agent.Request{Query: "how many documents mention rollbacks"})

		Expect(outcome.Steps).To(HaveLen(2))
		Expect(outcome.Steps[0].Err).To(BeEmpty())
		Expect(outcome.Steps[1].Err).To(ContainSubstring("provider down"))
		Expect(outcome.Answer).To(ContainSubstring("2 documents"))
	})

	It("marks the outcome cancelled when the context is done", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		outcome, err := newEngine(0).Run(cancelled, agent.Request{
			Query:      "how do deploys work",
			Collection: collection,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Cancelled).To(BeTrue())
		Expect(outcome.Steps).To(BeEmpty())
	})
})

var _ = Describe("Registry", func() {
	It("keeps registration order and replaces duplicates", func() {
		registry := agent.NewRegistry()
		first := &fakeTool{name: "alpha", summary: "one"}
		second := &fakeTool{name: "beta", summary: "two"}
		replacement := &fakeTool{name: "alpha", summary: "three"}

		registry.Register(first)
		registry.Register(second)
		registry.Register(replacement)

		Expect(registry.Names()).To(Equal([]string{"alpha", "beta"}))
		out, err := registry.Get("alpha").Run(context.Background(), agent.Input{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Summary).To(Equal("three"))
	})
})

type fakeTool struct {
	name    string
	summary string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return f.name }

func (f *fakeTool) Run(_ context.Context, _ agent.Input) (agent.Output, error) {
	return agent.Output{Summary: f.summary}, nil
}
