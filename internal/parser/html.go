// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// parseHTML extracts text from an HTML file. Script, style, and noscript
// subtrees are dropped before extraction, the document title is kept as a
// leading line so retrieval sees it, and runs of blank lines left behind
// by block elements are collapsed.
func parseHTML(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open HTML file: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var builder strings.Builder
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		builder.WriteString(title)
		builder.WriteString("\n\n")
	}
	builder.WriteString(doc.Find("body").Text())
	if builder.Len() == 0 {
		builder.WriteString(doc.Text())
	}

	text := blankRunPattern.ReplaceAllString(builder.String(), "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no text extracted from HTML: %s", filePath)
	}

	return text, nil
}
