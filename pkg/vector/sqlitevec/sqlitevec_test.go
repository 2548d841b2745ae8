package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/vector"
	"github.com/quarryhq/quarry/pkg/vector/sqlitevec"
)

var _ = Describe("Store", func() {
	var (
		store *sqlitevec.Store
		ctx   context.Context
	)

	const coll = "documents"

	chunk := func(fileID string, index int, embedding []float32) vector.Chunk {
		return vector.Chunk{
			FileID:    fileID,
			Index:     index,
			Text:      "span text",
			Embedding: embedding,
		}
	}

	BeforeEach(func() {
		var err error
		store, err = sqlitevec.NewStore(sqlitevec.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("NewStore", func() {
		It("requires a database path", func() {
			_, err := sqlitevec.NewStore(sqlitevec.Config{}, zap.NewNop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})
	})

	Describe("Upsert and Count", func() {
		It("creates the collection lazily and stores chunks", func() {
			err := store.Upsert(ctx, coll, []vector.Chunk{
				chunk("a", 0, []float32{1, 0, 0}),
				chunk("a", 1, []float32{0, 1, 0}),
			})
			Expect(err).NotTo(HaveOccurred())

			count, err := store.Count(ctx, coll)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(2)))
		})

		It("overwrites rather than duplicates on the same key", func() {
			Expect(store.Upsert(ctx, coll, []vector.Chunk{chunk("a", 0, []float32{1, 0, 0})})).To(Succeed())
			Expect(store.Upsert(ctx, coll, []vector.Chunk{chunk("a", 0, []float32{0, 1, 0})})).To(Succeed())

			count, err := store.Count(ctx, coll)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})

		It("rejects mismatched dimensionality", func() {
			Expect(store.Upsert(ctx, coll, []vector.Chunk{chunk("a", 0, []float32{1, 0, 0})})).To(Succeed())

			err := store.EnsureCollection(ctx, coll, 4)
			Expect(err).To(MatchError(vector.ErrSchemaMismatch))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(store.Upsert(ctx, coll, []vector.Chunk{
				chunk("close", 0, []float32{0.9, 0.1, 0}),
				chunk("far", 0, []float32{0.1, 0.9, 0}),
			})).To(Succeed())
		})

		It("returns the most similar chunk first", func() {
			hits, err := store.Search(ctx, coll, []float32{1, 0, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(2))
			Expect(hits[0].FileID).To(Equal("close"))
			Expect(hits[0].Score).To(BeNumerically(">", hits[1].Score))
		})

		It("applies a file id filter", func() {
			hits, err := store.Search(ctx, coll, []float32{1, 0, 0}, 10, &vector.Filter{FileID: "far"})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].FileID).To(Equal("far"))
		})

		It("returns nothing for an unknown collection", func() {
			hits, err := store.Search(ctx, "missing", []float32{1, 0, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(BeEmpty())
		})
	})

	Describe("DeleteByFileID", func() {
		It("removes every chunk of the file", func() {
			Expect(store.Upsert(ctx, coll, []vector.Chunk{
				chunk("doomed", 0, []float32{1, 0, 0}),
				chunk("doomed", 1, []float32{0, 1, 0}),
				chunk("kept", 0, []float32{0, 0, 1}),
			})).To(Succeed())

			Expect(store.DeleteByFileID(ctx, coll, "doomed")).To(Succeed())

			count, err := store.Count(ctx, coll)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))

			ids, err := store.ListFileIDs(ctx, coll)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"kept"}))
		})
	})

	Describe("Interface compliance", func() {
		It("implements vector.Store", func() {
			var _ vector.Store = (*sqlitevec.Store)(nil)
		})
	})
})
