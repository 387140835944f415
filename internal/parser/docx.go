package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

const methodDOCX = "docx"

// docxStrategy walks the document body and collects paragraph and table
// text. A document whose content lives only in embedded images yields empty
// text; Parse records that as a degraded document upstream.
type docxStrategy struct{}

func (docxStrategy) name() string { return methodDOCX }

func (docxStrategy) extract(data []byte) (string, int, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%s: parse: %w", methodDOCX, err)
	}

	var sb strings.Builder
	blocks := 0
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(v.String())
			sb.WriteString("\n")
			blocks++
		case *docx.Table:
			sb.WriteString(v.String())
			sb.WriteString("\n")
			blocks++
		}
	}
	return sb.String(), blocks, nil
}
