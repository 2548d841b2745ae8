package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quarryhq/quarry/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals DocumentEvent with expected top-level keys", func() {
		event := eventstream.NewDocumentIngestedEvent("documents", "file-1", "text/plain", 3)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("collection"))
		Expect(got).To(HaveKey("file_id"))
		Expect(got).To(HaveKey("chunk_count"))
	})

	It("omits chunk count from deletion events", func() {
		event := eventstream.NewDocumentDeletedEvent("documents", "file-1")

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got["event_type"]).To(Equal(eventstream.EventTypeDocumentDeleted))
		Expect(got).NotTo(HaveKey("chunk_count"))
	})

	It("assigns distinct event IDs", func() {
		first := eventstream.NewDocumentIngestedEvent("documents", "file-1", "", 1)
		second := eventstream.NewDocumentIngestedEvent("documents", "file-1", "", 1)
		Expect(first.EventID).NotTo(Equal(second.EventID))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeDocumentIngested).To(Equal("quarry.document.ingested"))
		Expect(eventstream.EventTypeDocumentDeleted).To(Equal("quarry.document.deleted"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilEvent).To(MatchError("nil document event"))
	})
})
