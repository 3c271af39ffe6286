package parsing

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TEIDocument is the parsed view of a GROBID TEI file: just the parts
// the pipeline reads, not a general TEI model.
type TEIDocument struct {
	Title           string
	Abstract        string
	BodyText        string
	ReferencesCount int
	FigureCount     int
}

// ParseTEI walks the TEI token stream once, collecting the header
// title, abstract and body paragraphs and counting references and
// figures.
func ParseTEI(data []byte) (*TEIDocument, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	doc := &TEIDocument{}

	var (
		stack      []string
		paragraphs []string
		buf        strings.Builder
	)
	// Depth at which the currently captured <p> or <title> started, or
	// -1. Character data inside nested elements (GROBID wraps citations
	// in <ref> mid-sentence) keeps accumulating into the same buffer
	// until that element closes.
	captureDepth := -1

	inside := func(name string) bool {
		for _, e := range stack {
			if e == name {
				return true
			}
		}
		return false
	}

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse tei: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch name {
			case "biblStruct":
				if inside("listBibl") {
					doc.ReferencesCount++
				}
			case "figure":
				if inside("body") {
					doc.FigureCount++
				}
			}
			stack = append(stack, name)
			if captureDepth < 0 && (name == "p" || name == "title") {
				captureDepth = len(stack)
				buf.Reset()
			}

		case xml.CharData:
			if captureDepth >= 0 {
				buf.Write(t)
			}

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if captureDepth < 0 || len(stack) >= captureDepth {
				break
			}
			captureDepth = -1
			text := strings.TrimSpace(buf.String())

			switch t.Name.Local {
			case "title":
				if doc.Title == "" && inside("titleStmt") && text != "" {
					doc.Title = text
				}
			case "p":
				if text == "" {
					break
				}
				if inside("abstract") {
					if doc.Abstract != "" {
						doc.Abstract += "\n\n"
					}
					doc.Abstract += text
				} else if inside("body") {
					paragraphs = append(paragraphs, text)
				}
			}
		}
	}

	doc.BodyText = strings.Join(paragraphs, "\n\n")
	return doc, nil
}

// FullText returns the text handed to the extractors: abstract first,
// then body.
func (d *TEIDocument) FullText() string {
	parts := make([]string, 0, 2)
	if d.Abstract != "" {
		parts = append(parts, d.Abstract)
	}
	if d.BodyText != "" {
		parts = append(parts, d.BodyText)
	}
	return strings.Join(parts, "\n\n")
}
