package run

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegacyCodeHQ/sequencer/report"
)

func writeSources(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRunCommand_JSONReport(t *testing.T) {
	dir := writeSources(t, map[string]string{
		"a.go":    "package main\n\nfunc helper() int {\n\treturn 1\n}\n",
		"main.go": "package main\n\nimport \"a.go\"\n\nfunc main() {\n\thelper()\n}\n",
	})

	out, err := execute(t, filepath.Join(dir, "main.go"), "--format", "json", "--workers", "2")
	require.NoError(t, err)

	var summary report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Programs, 1)
	assert.Equal(t, "done", summary.Programs[0].State)
	assert.NotEmpty(t, summary.RunID)
	assert.Empty(t, summary.Stalled)
}

func TestRunCommand_EmitFromEntry(t *testing.T) {
	dir := writeSources(t, map[string]string{
		"main.go": "package main\n\nfunc helper() {}\n\nfunc main() {\n\thelper()\n}\n",
	})
	main := filepath.Join(dir, "main.go")

	out, err := execute(t, main, "--entry", main+":main", "--emit", "--format", "json")
	require.NoError(t, err)

	var summary report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "done", summary.Programs[0].State)
	assert.Equal(t, 2, summary.Programs[0].Live)
}

func TestRunCommand_FailsOnUnresolvedNames(t *testing.T) {
	dir := writeSources(t, map[string]string{
		"main.go": "package main\n\nfunc main() {\n\tmissing()\n}\n",
	})

	out, err := execute(t, dir)

	require.Error(t, err)
	assert.ErrorContains(t, err, "compilation failed")
	assert.Contains(t, out, "stalled")
	assert.Contains(t, out, "symbol(missing)")
}

func TestRunCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, ".", "--format", "xml")

	assert.ErrorContains(t, err, "unknown report format: xml")
}

func TestRunCommand_RejectsMalformedEntry(t *testing.T) {
	dir := writeSources(t, map[string]string{"main.go": "package main\n"})

	_, err := execute(t, dir, "--entry", "main")

	assert.ErrorContains(t, err, "expected file:name")
}
