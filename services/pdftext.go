package services

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExcerpt returns up to limit runes of plain text from the PDF at path.
// The reader panics on some malformed files; that is reported as an error.
func PDFExcerpt(path string, limit int) (text string, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return pdfText(content, limit)
}

func pdfText(content []byte, limit int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var buf strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(s)
		buf.WriteByte('\n')
		if limit > 0 && buf.Len() >= limit*4 {
			break
		}
	}
	out := strings.TrimSpace(buf.String())
	if limit > 0 {
		runes := []rune(out)
		if len(runes) > limit {
			out = string(runes[:limit])
		}
	}
	return out, nil
}

// IsPDF reports whether filename carries a .pdf extension.
func IsPDF(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}
