package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	ErrOutputDirRequired = errors.New("output_dir is required")
	ErrOutputDirInvalid  = errors.New("invalid output_dir")
)

// DefaultProjectName is used when the requested name sanitizes to nothing.
const DefaultProjectName = "reelcut_export"

func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// ValidateOutputDir accepts only clean, existing directories.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return ErrOutputDirRequired
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("%w: path traversal", ErrOutputDirInvalid)
		}
	}

	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%w: must be a clean path", ErrOutputDirInvalid)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: does not exist", ErrOutputDirInvalid)
		}
		return fmt.Errorf("%w: %v", ErrOutputDirInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: not a directory", ErrOutputDirInvalid)
	}

	return nil
}

// WriteEDL validates dir and writes the list as <name>.edl inside it.
func WriteEDL(dir, name, edl string) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}
	name = SanitizeName(name, 120)
	if name == "" {
		name = DefaultProjectName
	}
	out := filepath.Join(dir, name+".edl")
	if err := os.WriteFile(out, []byte(edl), 0o644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	return out, nil
}
