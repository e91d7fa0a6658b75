package git

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupGitRepo initializes a git repository in a temporary directory
func setupGitRepo(t *testing.T, dir string) {
	t.Helper()
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	require.NoError(t, cmd.Run(), "failed to initialize git repository")

	// Configure git user to avoid errors
	gitConfig(t, dir, "user.name", "Test User")
	gitConfig(t, dir, "user.email", "test@example.com")
	gitConfig(t, dir, "commit.gpgsign", "false")
}

// gitConfig sets a git config value
func gitConfig(t *testing.T, repoDir, key, value string) {
	t.Helper()
	cmd := exec.Command("git", "config", key, value)
	cmd.Dir = repoDir
	require.NoError(t, cmd.Run(), "failed to set git config %s", key)
}

// createFile creates a file with content, creating parent directories as needed
func createFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644), "failed to create file %s", name)
	return filePath
}

// gitAdd adds a file to git staging area
func gitAdd(t *testing.T, repoDir, file string) {
	t.Helper()
	cmd := exec.Command("git", "add", file)
	cmd.Dir = repoDir
	require.NoError(t, cmd.Run(), "failed to git add %s", file)
}

// gitCommit commits files with a message
func gitCommit(t *testing.T, repoDir, message string) {
	t.Helper()
	cmd := exec.Command("git", "commit", "-m", message)
	cmd.Dir = repoDir
	require.NoError(t, cmd.Run(), "failed to git commit")
}

// gitCommitAndGetSHA commits files and returns the commit SHA
func gitCommitAndGetSHA(t *testing.T, repoDir, message string) string {
	t.Helper()
	gitCommit(t, repoDir, message)

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoDir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	require.NoError(t, cmd.Run(), "failed to get commit SHA")

	return strings.TrimSpace(stdout.String())
}
