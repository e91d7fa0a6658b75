package git

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const unbornHead = "unborn"

// SourceState returns a digest of what a build of the repository's source files can see from
// git: the checked-out commit, the index entries of the source files and their worktree status.
// Only files with one of the given extensions count. No extensions means every file.
//
// The digest is prefixed with the HEAD commit so two states can be told apart in logs.
func SourceState(repoPath string, extensions ...string) (string, error) {
	head, err := headCommit(repoPath)
	if err != nil {
		return "", err
	}

	pathspecs := sourcePathspecs(extensions)
	index, stderr, err := runGitCommand(repoPath, append([]string{"ls-files", "--stage", "-z", "--"}, pathspecs...)...)
	if err != nil {
		return "", gitCommandError(err, stderr)
	}
	status, stderr, err := runGitCommand(repoPath, append([]string{"status", "--porcelain=v1", "-z", "--untracked-files=all", "--"}, pathspecs...)...)
	if err != nil {
		return "", gitCommandError(err, stderr)
	}

	h := sha256.New()
	for _, part := range [][]byte{[]byte(head), index, status} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return head + ":" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

// sourcePathspecs matches files with the given extensions at any depth.
func sourcePathspecs(extensions []string) []string {
	specs := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		specs = append(specs, ":(glob)**/*"+ext)
	}
	return specs
}

func headCommit(repoPath string) (string, error) {
	head, stderr, err := runGitCommand(repoPath, "rev-parse", "--verify", "HEAD")
	if err == nil {
		return strings.TrimSpace(string(head)), nil
	}
	if strings.Contains(strings.ToLower(stderr), "needed a single revision") {
		return unbornHead, nil
	}
	return "", gitCommandError(err, stderr)
}
