package extract_test

import (
	"archive/zip"
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quarryhq/quarry/pkg/extract"
)

func zipArchive(files map[string]string) []byte {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := writer.Create(name)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("DetectContentType", func() {
	It("prefers an explicit media type and strips parameters", func() {
		Expect(extract.DetectContentType("text/plain; charset=utf-8", "notes.pdf")).
			To(Equal("text/plain"))
	})

	It("falls back to the filename extension", func() {
		Expect(extract.DetectContentType("", "slides.pptx")).To(Equal(extract.TypePptx))
		Expect(extract.DetectContentType("application/octet-stream", "readme.md")).
			To(Equal(extract.TypeMarkdown))
	})

	It("returns the normalized input when nothing matches", func() {
		Expect(extract.DetectContentType("Application/PDF", "mystery.bin")).
			To(Equal("application/pdf"))
	})
})

var _ = Describe("Text", func() {
	It("passes plain text through unchanged", func() {
		text, err := extract.Text([]byte("hello world"), "text/plain")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("hello world"))
	})

	It("treats markdown as text", func() {
		text, err := extract.Text([]byte("# Title\n\nbody"), "text/markdown")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("# Title\n\nbody"))
	})

	It("trims surrounding whitespace", func() {
		text, err := extract.Text([]byte("  padded  \n"), "text/plain")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("padded"))
	})

	It("rejects documents with no text", func() {
		_, err := extract.Text([]byte("   \n\t "), "text/plain")
		Expect(err).To(MatchError(extract.ErrEmptyContent))
	})

	It("rejects invalid utf-8 in text documents", func() {
		_, err := extract.Text([]byte{0xff, 0xfe, 0x00}, "text/plain")
		Expect(err).To(MatchError(extract.ErrMalformedDocument))
	})

	It("rejects unknown content types", func() {
		_, err := extract.Text([]byte("data"), "application/x-unknown")
		Expect(err).To(MatchError(extract.ErrUnsupportedType))
	})

	Context("docx", func() {
		const documentXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

		It("joins paragraphs with newlines", func() {
			data := zipArchive(map[string]string{"word/document.xml": documentXML})

			text, err := extract.Text(data, extract.TypeDocx)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("First paragraph.\nSecond paragraph."))
		})

		It("rejects archives without a document part", func() {
			data := zipArchive(map[string]string{"word/styles.xml": "<styles/>"})

			_, err := extract.Text(data, extract.TypeDocx)
			Expect(err).To(MatchError(extract.ErrMalformedDocument))
		})

		It("rejects bytes that are not a zip archive", func() {
			_, err := extract.Text([]byte("not a zip"), extract.TypeDocx)
			Expect(err).To(MatchError(extract.ErrMalformedDocument))
		})
	})

	Context("pptx", func() {
		slideXML := func(text string) string {
			return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"` +
				` xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
				`<p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text +
				`</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		}

		It("orders slides numerically, not lexically", func() {
			data := zipArchive(map[string]string{
				"ppt/slides/slide10.xml": slideXML("tenth"),
				"ppt/slides/slide2.xml":  slideXML("second"),
				"ppt/slides/slide1.xml":  slideXML("first"),
			})

			text, err := extract.Text(data, extract.TypePptx)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("first\nsecond\ntenth"))
		})
	})

	Context("xlsx", func() {
		const sharedStringsXML = `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <si><t>Revenue</t></si>
  <si><r><t>Q1 </t></r><r><t>totals</t></r></si>
</sst>`

		It("extracts the shared string table", func() {
			data := zipArchive(map[string]string{"xl/sharedStrings.xml": sharedStringsXML})

			text, err := extract.Text(data, extract.TypeXlsx)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Revenue\nQ1 \ntotals"))
		})
	})

	Context("pdf", func() {
		It("rejects bytes that are not a pdf", func() {
			_, err := extract.Text([]byte("definitely not a pdf"), extract.TypePDF)
			Expect(err).To(MatchError(extract.ErrMalformedDocument))
		})
	})
})
