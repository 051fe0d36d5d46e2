// Package export writes comparison and lab results to files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFile writes data to outputDir/name, creating the directory first.
func WriteFile(outputDir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, sanitizeFilename(name))
	return path, os.WriteFile(path, data, 0644)
}

// WriteCSV writes a UTF-8 CSV with a header row.
func WriteCSV(outputDir, name string, header []string, rows [][]string) (string, error) {
	data, err := EncodeCSV(header, rows)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}
	return WriteFile(outputDir, name, data)
}

func EncodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(outputDir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}
	return WriteFile(outputDir, name, append(data, '\n'))
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(s)
}
