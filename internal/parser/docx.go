// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTag          = regexp.MustCompile(`<[^>]+>`)
)

// parseDOCX extracts text from a DOCX file. The library hands back the
// raw document XML, so paragraph boundaries are turned into newlines,
// remaining markup is stripped, and entities are decoded before the text
// reaches the chunker.
func parseDOCX(filePath string) (string, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX file: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	text := strings.TrimSpace(content)
	if text == "" {
		return "", fmt.Errorf("no text extracted from DOCX: %s", filePath)
	}

	return text, nil
}
