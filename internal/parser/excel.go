// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseExcel flattens every sheet of a workbook into "Row N: Header:
// Value, ..." lines, a linear rendering the chunker and embedder can
// treat as ordinary text. Sheets that cannot be read (e.g. protected)
// are noted inline rather than failing the whole file.
func parseExcel(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return "", fmt.Errorf("no sheets found in Excel file: %s", filePath)
	}

	var sections []string
	for _, sheetName := range sheetList {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			sections = append(sections, fmt.Sprintf("Sheet: %s\n(Unable to read sheet: %v)", sheetName, err))
			continue
		}
		if section := flattenSheet(sheetName, rows); section != "" {
			sections = append(sections, section)
		}
	}

	result := strings.TrimSpace(strings.Join(sections, "\n\n"))
	if result == "" {
		return "", fmt.Errorf("no content extracted from Excel file: %s", filePath)
	}

	return result, nil
}

// flattenSheet renders one sheet. The first non-empty row is treated as
// the header row; columns with a blank header fall back to a positional
// name so no value is dropped.
func flattenSheet(sheetName string, rows [][]string) string {
	headerIdx := -1
	for i, row := range rows {
		if rowHasContent(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return ""
	}
	headers := rows[headerIdx]

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))

	for rowIdx := headerIdx + 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]
		var rowParts []string
		for colIdx, header := range headers {
			if colIdx >= len(row) {
				break
			}
			value := strings.TrimSpace(row[colIdx])
			if value == "" {
				continue
			}
			headerName := strings.TrimSpace(header)
			if headerName == "" {
				headerName = fmt.Sprintf("Column %d", colIdx+1)
			}
			rowParts = append(rowParts, fmt.Sprintf("%s: %s", headerName, value))
		}
		if len(rowParts) > 0 {
			builder.WriteString(fmt.Sprintf("Row %d: %s\n", rowIdx+1, strings.Join(rowParts, ", ")))
		}
	}

	return strings.TrimSpace(builder.String())
}

func rowHasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}
