// Package extract converts uploaded document bytes into plain text for
// chunking and embedding. Plain text and markdown pass through unchanged;
// PDF and Office Open XML formats are parsed for their text content.
package extract

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	TypePlainText = "text/plain"
	TypeMarkdown  = "text/markdown"
	TypePDF       = "application/pdf"
	TypeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypePptx      = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	TypeXlsx      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var extensionTypes = map[string]string{
	".txt":  TypePlainText,
	".text": TypePlainText,
	".md":   TypeMarkdown,
	".pdf":  TypePDF,
	".docx": TypeDocx,
	".pptx": TypePptx,
	".xlsx": TypeXlsx,
}

// DetectContentType resolves a content type from an explicit value or, when
// that is empty or generic, from the filename extension. An unrecognized
// input falls back to plain text only for a .txt-less filename with an
// explicit text/* type.
func DetectContentType(contentType, filename string) string {
	if mediaType := normalize(contentType); mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	return normalize(contentType)
}

// Text extracts the plain text of a document. The content type should be a
// media type as produced by DetectContentType; parameters such as charset
// are ignored.
func Text(data []byte, contentType string) (string, error) {
	mediaType := normalize(contentType)

	var (
		text string
		err  error
	)

	switch {
	case mediaType == TypePDF:
		text, err = pdfText(data)
	case mediaType == TypeDocx:
		text, err = docxText(data)
	case mediaType == TypePptx:
		text, err = pptxText(data)
	case mediaType == TypeXlsx:
		text, err = xlsxText(data)
	case mediaType == TypeMarkdown, strings.HasPrefix(mediaType, "text/"):
		text, err = plainText(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8", ErrMalformedDocument)
	}
	return string(data), nil
}

func normalize(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
