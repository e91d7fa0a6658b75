package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegacyCodeHQ/sequencer/compile"
	"github.com/LegacyCodeHQ/sequencer/config"
	"github.com/LegacyCodeHQ/sequencer/report"
)

func testOptions(t *testing.T) compile.Options {
	t.Helper()
	cfg := config.Default()
	var logs bytes.Buffer
	return compile.Options{Config: cfg, Logger: cfg.NewLogger(&logs)}
}

func TestBuilder_PublishesGraphAndSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("package main\n\nfunc helper() {}\n\nfunc main() {\n\thelper()\n}\n"), 0o644))

	b := newBroker()
	live := b.subscribe()
	defer b.unsubscribe(live)

	summary, err := newBuilder(dir, testOptions(t), b).build(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Succeeded())

	first := <-live
	assert.Equal(t, sseEventScheduler, first.Event)

	replay := b.subscribe()
	defer b.unsubscribe(replay)
	require.Len(t, replay, 2)
	latest := make(map[string]string)
	for len(replay) > 0 {
		m := <-replay
		latest[m.Event] = m.Data
	}

	assert.Contains(t, latest[sseEventGraph], "digraph")
	assert.Contains(t, latest[sseEventGraph], "main.go:helper")

	var published report.Summary
	require.NoError(t, json.Unmarshal([]byte(latest[sseEventSummary]), &published))
	assert.Equal(t, summary.RunID, published.RunID)
}

func TestBuilder_NoSources(t *testing.T) {
	_, err := newBuilder(t.TempDir(), testOptions(t), newBroker()).build(context.Background())

	assert.ErrorIs(t, err, errNoSources)
}

func TestBuilder_PublishResetsWithoutSources(t *testing.T) {
	b := newBroker()
	b.publish(message{Event: sseEventSummary, Data: "{}"})

	newBuilder(t.TempDir(), testOptions(t), b).publish(context.Background())

	ch := b.subscribe()
	defer b.unsubscribe(ch)
	require.Len(t, ch, 1)
	assert.Equal(t, message{Event: sseEventGraph, Data: emptyDOTGraph}, <-ch)
}
