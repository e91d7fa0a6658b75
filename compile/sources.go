package compile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/LegacyCodeHQ/sequencer/vcs/git"
)

// Sources lists the files to compile. Paths are expanded from the working tree, or taken from
// the tree of commit when one is given and paths is empty.
func Sources(paths []string, repo, commit string) ([]string, error) {
	if commit != "" && len(paths) == 0 {
		if repo == "" {
			repo = "."
		}
		files, err := git.CommitTreeFiles(repo, commit, sourceExtension)
		if err != nil {
			return nil, fmt.Errorf("failed to list files at %s: %w", commit, err)
		}
		return files, nil
	}
	if commit != "" {
		return paths, nil
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	return ExpandPaths(paths)
}

// ExpandPaths expands file paths and directories into individual file paths.
// Directories are recursively walked and only source files are included.
func ExpandPaths(paths []string) ([]string, error) {
	var result []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", path, err)
		}

		if !info.IsDir() {
			result = append(result, filepath.Clean(path))
			continue
		}

		err = filepath.WalkDir(path, func(filePath string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if filePath != path && isHidden(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(filePath) == sourceExtension {
				result = append(result, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", path, err)
		}
	}

	sort.Strings(result)
	return result, nil
}

func isHidden(name string) bool {
	return len(name) > 1 && (name[0] == '.' || name[0] == '_')
}
