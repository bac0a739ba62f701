// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mnako/letters"
)

// parseEmail extracts text from an EML email file
func parseEmail(filePath string) (string, error) {
	// Open the EML file
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open EML file: %w", err)
	}
	defer file.Close()

	// Parse the EML file using letters.ParseEmail
	email, err := letters.ParseEmail(file)
	if err != nil {
		return "", fmt.Errorf("failed to parse EML file: %w", err)
	}

	var builder strings.Builder

	// Format email metadata
	if email.Headers.Subject != "" {
		builder.WriteString(fmt.Sprintf("Subject: %s\n", email.Headers.Subject))
	}

	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		sender := ""
		if from.Name != "" {
			sender = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		} else {
			sender = from.Address
		}
		builder.WriteString(fmt.Sprintf("Sender: %s\n", sender))
	}

	if len(email.Headers.To) > 0 {
		var recipients []string
		for _, to := range email.Headers.To {
			if to.Name != "" {
				recipients = append(recipients, fmt.Sprintf("%s <%s>", to.Name, to.Address))
			} else {
				recipients = append(recipients, to.Address)
			}
		}
		builder.WriteString(fmt.Sprintf("To: %s\n", strings.Join(recipients, ", ")))
	}

	if !email.Headers.Date.IsZero() {
		builder.WriteString(fmt.Sprintf("Date: %s\n", email.Headers.Date.Format(time.RFC3339)))
	}

	// Add body text
	builder.WriteString("\n")

	// Prefer text body, fall back to HTML body stripped of markup if needed
	bodyText := ""
	if email.Text != "" {
		bodyText = email.Text
	} else if email.HTML != "" {
		bodyText = stripHTMLTags(email.HTML)
	}

	if bodyText != "" {
		builder.WriteString(bodyText)
	}

	result := strings.TrimSpace(builder.String())
	if result == "" {
		return "", fmt.Errorf("no content extracted from EML: %s", filePath)
	}

	return result, nil
}

// stripHTMLTags reduces an HTML email body to its text content, reusing
// the same goquery pipeline parseHTML uses for standalone HTML files
// rather than shipping raw markup into the chunker.
func stripHTMLTags(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	return doc.Text()
}
