package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Excerpt extracts the section of a diagnostic dump that mentions needle.
// Lines are kept from the first line containing needle (case-insensitive)
// up to and including the first blank line once more than three lines are
// held. When needle never appears the first limit characters are kept.
func Excerpt(output, needle string, limit int) string {
	needle = strings.ToLower(needle)
	capturing := false
	var section []string

	for _, line := range strings.Split(output, "\n") {
		if !capturing && needle != "" && strings.Contains(strings.ToLower(line), needle) {
			capturing = true
		}
		if !capturing {
			continue
		}
		section = append(section, line)
		if strings.TrimSpace(line) == "" && len(section) > 3 {
			break
		}
	}

	if len(section) > 0 {
		return strings.Join(section, "\n")
	}

	runes := []rune(output)
	if limit >= 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return output
}

// WriteExcerpt stores content as dir/name and returns its path
func WriteExcerpt(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create excerpt directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write excerpt: %w", err)
	}
	return path, nil
}
