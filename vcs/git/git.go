package git

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/vcs"
)

// RepositoryRoot returns the absolute path to the repository root
func RepositoryRoot(repoPath string) (string, error) {
	out, stderr, err := runGitCommand(repoPath, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", gitCommandError(err, stderr)
	}
	return strings.TrimSpace(string(out)), nil
}

// ValidateCommit validates that a commit reference resolves in the given repository.
func ValidateCommit(repoPath, commitID string) error {
	if err := validateGitRef(commitID); err != nil {
		return err
	}

	_, stderr, err := runGitCommand(repoPath, "rev-parse", "--verify", commitID+"^{commit}")
	if err != nil {
		if stderr != "" {
			return fmt.Errorf("invalid commit reference '%s': %s", commitID, stderr)
		}
		return fmt.Errorf("invalid commit reference '%s'", commitID)
	}
	return nil
}

// ShortCommitHash returns the short version of a given commit hash
func ShortCommitHash(repoPath, commitID string) (string, error) {
	if err := validateGitRef(commitID); err != nil {
		return "", err
	}

	out, stderr, err := runGitCommand(repoPath, "rev-parse", "--short", commitID)
	if err != nil {
		return "", gitCommandError(err, stderr)
	}
	return strings.TrimSpace(string(out)), nil
}

// FileContentAtCommit reads the content of a file at a specific commit
// using 'git show commit:path'. The filePath should be relative to the repository root.
func FileContentAtCommit(repoPath, commitID, filePath string) ([]byte, error) {
	if err := validateGitRef(commitID); err != nil {
		return nil, err
	}
	if err := validateGitRelPath(filePath); err != nil {
		return nil, err
	}

	out, stderr, err := runGitCommand(repoPath, "show", fmt.Sprintf("%s:%s", commitID, filepath.ToSlash(filePath)))
	if err != nil {
		if stderr != "" {
			return nil, fmt.Errorf("git show failed: %s", stderr)
		}
		return nil, err
	}
	return out, nil
}

// CommitTreeFiles returns the repository-relative paths of every file in a commit's tree
// that has one of the given extensions. No extensions means every file.
func CommitTreeFiles(repoPath, commitID string, extensions ...string) ([]string, error) {
	if err := ValidateCommit(repoPath, commitID); err != nil {
		return nil, err
	}

	out, stderr, err := runGitCommand(repoPath, "ls-tree", "-r", "--name-only", commitID)
	if err != nil {
		return nil, gitCommandError(err, stderr)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !hasExtension(line, extensions) {
			continue
		}
		files = append(files, line)
	}
	return files, nil
}

// CommitContentReader reads files as they were at commitID. Paths may be absolute or relative
// to the repository root.
func CommitContentReader(repoPath, commitID string) (vcs.ContentReader, error) {
	if err := ValidateCommit(repoPath, commitID); err != nil {
		return nil, err
	}
	root, err := RepositoryRoot(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository root: %w", err)
	}

	return func(filePath string) ([]byte, error) {
		rel := filePath
		if filepath.IsAbs(filePath) {
			rel, err = filepath.Rel(root, filePath)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s against %s: %w", filePath, root, err)
			}
		}
		return FileContentAtCommit(root, commitID, rel)
	}, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func validateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git reference cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("git reference cannot start with '-': %q", ref)
	}
	if strings.ContainsAny(ref, "\x00\n\r\t ") {
		return fmt.Errorf("git reference contains whitespace or NUL: %q", ref)
	}
	return nil
}

func validateGitRelPath(path string) error {
	if path == "" {
		return fmt.Errorf("git path cannot be empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("git path must be relative: %q", path)
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("git path contains NUL: %q", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("git path escapes repository: %q", path)
	}
	return nil
}
