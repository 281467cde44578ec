package extractor

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// CountPDFPages parses the raw bytes as a PDF and returns its page count.
// Unreadable or non-PDF content yields an error, never a zero count.
func CountPDFPages(data []byte) (int, error) {
	reader := bytes.NewReader(data)

	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages <= 0 {
		return 0, fmt.Errorf("PDF contains no pages")
	}

	return numPages, nil
}
