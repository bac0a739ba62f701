// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/northbound/rag-core/internal/logger"
)

// Result is what a registered processor returns for one file: either
// pre-chunked content (used directly) or plain extracted text, which the
// caller's Chunker then splits.
type Result struct {
	Status string
	Text   string
	Chunks []string
}

// Processor is one entry in the FileProcessor registry: given a path, it
// reports whether it can handle the file and extracts its content.
type Processor interface {
	CanProcess(path string) bool
	Process(path string, meta map[string]any) (Result, error)
}

// Registry holds the ordered set of processors consulted for each file;
// the first processor that claims a path handles it.
type Registry struct {
	processors []Processor
	log        *logger.Logger
}

// NewRegistry builds the default registry wired to every extraction
// function already in this package (PDF, DOCX, plain text/markdown,
// spreadsheet, HTML, email).
func NewRegistry() *Registry {
	r := &Registry{log: logger.GetDefault()}
	r.processors = []Processor{
		extensionProcessor{exts: []string{".pdf"}, extract: parsePDF},
		extensionProcessor{exts: []string{".docx"}, extract: parseDOCX},
		extensionProcessor{exts: []string{".txt", ".md"}, extract: parseText},
		extensionProcessor{exts: []string{".xlsx", ".xls"}, extract: parseExcel},
		extensionProcessor{exts: []string{".html", ".htm"}, extract: parseHTML},
		extensionProcessor{exts: []string{".eml"}, extract: parseEmail},
	}
	return r
}

// Register appends a custom processor, consulted after the built-ins that
// came before it, so callers can extend extraction to a new format without
// forking this package. A built-in that claims the same path takes
// precedence, so a registered processor does not override it.
func (r *Registry) Register(p Processor) {
	r.processors = append(r.processors, p)
}

// Process finds the first processor willing to handle path and returns its
// result. An unrecognized extension is reported to the caller rather than
// attempted as plain text, matching the original dispatcher's behavior.
func (r *Registry) Process(path string, meta map[string]any) (Result, error) {
	if IsTemporaryFile(path) {
		return Result{}, fmt.Errorf("refusing to process temporary file: %s", path)
	}
	for _, p := range r.processors {
		if !p.CanProcess(path) {
			continue
		}
		result, err := p.Process(path, meta)
		if err != nil {
			return Result{}, err
		}
		r.logExtraction(path, result.Text)
		return result, nil
	}
	return Result{}, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
}

// CanProcess reports whether any registered processor claims path.
func (r *Registry) CanProcess(path string) bool {
	for _, p := range r.processors {
		if p.CanProcess(path) {
			return true
		}
	}
	return false
}

func (r *Registry) logExtraction(path, text string) {
	snippet := text
	if len(snippet) > 150 {
		snippet = snippet[:150] + "..."
	}
	r.log.Printf("extracted %d characters from %s", len(text), path)
	r.log.Printf("snippet: %s", snippet)
}

// extensionProcessor adapts one of this package's plain
// func(path string) (string, error) extractors to the Processor
// interface, claiming any of a fixed set of extensions.
type extensionProcessor struct {
	exts    []string
	extract func(string) (string, error)
}

func (e extensionProcessor) CanProcess(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range e.exts {
		if ext == want {
			return true
		}
	}
	return false
}

func (e extensionProcessor) Process(path string, _ map[string]any) (Result, error) {
	text, err := e.extract(path)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: "ok", Text: text}, nil
}

// IsSupportedFile reports whether path's extension has a registered
// built-in processor, independent of any Registry instance.
func IsSupportedFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	supported := []string{".pdf", ".docx", ".txt", ".md", ".xlsx", ".xls", ".html", ".htm", ".eml"}
	for _, s := range supported {
		if ext == s {
			return true
		}
	}
	return false
}

// IsTemporaryFile checks if a file is a temporary/lock/backup artifact
// (e.g., ~$doc.docx) that should never be ingested.
func IsTemporaryFile(filePath string) bool {
	base := filepath.Base(filePath)
	if strings.HasPrefix(base, "~$") {
		return true
	}
	if strings.HasPrefix(base, "._") {
		return true
	}
	if strings.HasSuffix(base, ".tmp") {
		return true
	}
	return false
}
