// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// parsePDF extracts text from a PDF file using go-fitz (MuPDF). Pages
// that fail to render are skipped rather than failing the document; the
// extraction only errors when no page yielded any text at all.
func parsePDF(filePath string) (string, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	numPages := doc.NumPage()
	failedPages := 0

	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			failedPages++
			continue
		}
		if textBuilder.Len() > 0 {
			// page separator
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(pageText)
	}

	extractedText := strings.TrimSpace(textBuilder.String())
	if extractedText == "" {
		if failedPages > 0 {
			return "", fmt.Errorf("no text extracted from PDF %s (%d of %d pages unreadable)", filePath, failedPages, numPages)
		}
		return "", fmt.Errorf("no text extracted from PDF: %s", filePath)
	}

	return extractedText, nil
}
