// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"os"
	"strings"
)

// parseText extracts text from plain text files (.txt, .md). Line endings
// are normalized to \n and a UTF-8 BOM is stripped so the chunker's
// sentence and paragraph boundary detection sees consistent input
// regardless of which platform produced the file.
func parseText(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}

	text := string(content)
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return "", fmt.Errorf("no content in text file: %s", filePath)
	}

	return text, nil
}
