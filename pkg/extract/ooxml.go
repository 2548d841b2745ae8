package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// docx stores its body text in word/document.xml as paragraphs of runs.
type wordDocument struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func docxText(data []byte) (string, error) {
	reader, err := openArchive(data)
	if err != nil {
		return "", err
	}

	content, err := archiveFile(reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	var doc wordDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var out strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			out.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, text := range run.Text {
				out.WriteString(text.Content)
			}
		}
	}
	return out.String(), nil
}

func pptxText(data []byte) (string, error) {
	reader, err := openArchive(data)
	if err != nil {
		return "", err
	}

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range reader.File {
		name := file.Name
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var out strings.Builder
	for i, s := range slides {
		content, err := readArchiveFile(s.file)
		if err != nil {
			return "", err
		}
		text, err := collectTextElements(content)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(strings.Join(text, "\n"))
	}
	return out.String(), nil
}

func xlsxText(data []byte) (string, error) {
	reader, err := openArchive(data)
	if err != nil {
		return "", err
	}

	// The shared string table holds every inline text cell in the workbook.
	content, err := archiveFile(reader, "xl/sharedStrings.xml")
	if err != nil {
		return "", err
	}

	text, err := collectTextElements(content)
	if err != nil {
		return "", err
	}
	return strings.Join(text, "\n"), nil
}

func openArchive(data []byte) (*zip.Reader, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return reader, nil
}

func archiveFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name == name {
			return readArchiveFile(file)
		}
	}
	return nil, fmt.Errorf("%w: missing %s", ErrMalformedDocument, name)
}

func readArchiveFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return content, nil
}

// collectTextElements walks an OOXML part and gathers the character data of
// every <t> element regardless of namespace. Both DrawingML slides and
// spreadsheet shared strings keep their text in such elements.
func collectTextElements(content []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var texts []string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "t" {
			continue
		}

		var value string
		if err := decoder.DecodeElement(&value, &start); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		if value != "" {
			texts = append(texts, value)
		}
	}
	return texts, nil
}
