package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF extracts text from PDF bytes, page by page. Every page appears in
// the output: pages with a text layer get a page header followed by their
// text, pages without one get an inline NO TEXT LAYER marker so page count
// survives into the raw text.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var pages []string
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, fmt.Sprintf("--- PAGE %d [NO TEXT LAYER] ---", i))
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			pages = append(pages, fmt.Sprintf("--- PAGE %d [NO TEXT LAYER] ---", i))
			continue
		}
		pages = append(pages, fmt.Sprintf("--- PAGE %d ---\n%s", i, text))
	}
	return strings.Join(pages, "\n"), nil
}
