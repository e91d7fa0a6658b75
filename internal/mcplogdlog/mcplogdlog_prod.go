//go:build !dev

package mcplogdlog

const enabled = false

func send(level, message string, metadata map[string]any) {
	_ = level
	_ = message
	_ = metadata
}
