package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompts/extract_labs.txt
var ExtractionPrompt string

//go:embed prompts/normalize_anc.txt
var NormalizationPrompt string

// LoadPrompt returns the file at path, or builtin when path is empty.
func LoadPrompt(path, builtin string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return builtin, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt %s is empty", path)
	}
	return prompt, nil
}
