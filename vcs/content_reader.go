package vcs

import (
	"fmt"
	"os"
)

// ContentReader is a function that reads file content given a file path.
// This allows the caller to control how files are read (filesystem, git, etc.)
type ContentReader func(filePath string) ([]byte, error)

// FilesystemContentReader reads files from the working tree.
func FilesystemContentReader() ContentReader {
	return func(filePath string) ([]byte, error) {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
		}
		return data, nil
	}
}

// MapContentReader serves files from memory. Missing paths report os.ErrNotExist.
func MapContentReader(files map[string]string) ContentReader {
	return func(filePath string) ([]byte, error) {
		content, ok := files[filePath]
		if !ok {
			return nil, fmt.Errorf("failed to read %s: %w", filePath, os.ErrNotExist)
		}
		return []byte(content), nil
	}
}
