package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/taskforce/config"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage:")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "serve")

	code, _, stderr = runCLI(t, "launch")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: launch")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "taskforce dev")
	assert.Contains(t, stdout, "Git Commit")
}

func TestRun_Check(t *testing.T) {
	path := writeConfig(t, baseConfig(`
  wiki: {url: "http://localhost:8931/mcp"}
  fs: {command: npx, args: ["-y", "server-filesystem"]}
  board: {url: "wss://board.example.com/mcp", disabled: true}
`))

	code, stdout, stderr := runCLI(t, "check", "--config", path)

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "config OK (3 servers, 2 enabled)")
	assert.Regexp(t, `board\s+websocket\s+disabled`, stdout)
	assert.Regexp(t, `fs\s+stdio\s+enabled`, stdout)
	assert.Regexp(t, `wiki\s+http\s+enabled`, stdout)
}

func TestRun_CheckInvalid(t *testing.T) {
	path := writeConfig(t, baseConfig(`
  broken: {timeout: 5}
`))

	code, _, stderr := runCLI(t, "check", "--config", path)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `mcp server "broken": cannot determine transport type`)
}

func TestRun_Tools(t *testing.T) {
	wiki := newMCPServer(t, "search_pages", "get_page")
	path := writeConfig(t, baseConfig(`
  wiki: {url: "`+wiki.URL+`"}
`))

	code, stdout, stderr := runCLI(t, "tools", "--config", path)

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "TOOL")
	assert.Regexp(t, `wiki__get_page\s+remote get_page`, stdout)
	assert.Regexp(t, `wiki__search_pages\s+remote search_pages`, stdout)
}

func TestRun_Call(t *testing.T) {
	wiki := newMCPServer(t, "search_pages")
	path := writeConfig(t, baseConfig(`
  wiki: {url: "`+wiki.URL+`"}
`))

	code, stdout, stderr := runCLI(t, "call", "--config", path, "wiki", "search_pages", `{"query":"goroutines"}`)

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "search_pages: goroutines")
}

func TestRun_CallErrors(t *testing.T) {
	wiki := newMCPServer(t, "search_pages")
	path := writeConfig(t, baseConfig(`
  wiki: {url: "`+wiki.URL+`"}
`))

	t.Run("missing arguments", func(t *testing.T) {
		code, _, stderr := runCLI(t, "call", "--config", path, "wiki")
		assert.Equal(t, 2, code)
		assert.Contains(t, stderr, "usage: taskforce call")
	})

	t.Run("bad json", func(t *testing.T) {
		code, _, stderr := runCLI(t, "call", "--config", path, "wiki", "search_pages", `{"query":`)
		assert.Equal(t, 2, code)
		assert.Contains(t, stderr, "JSON object")
	})

	t.Run("array arguments", func(t *testing.T) {
		code, _, stderr := runCLI(t, "call", "--config", path, "wiki", "search_pages", `["goroutines"]`)
		assert.Equal(t, 2, code)
		assert.Contains(t, stderr, "JSON object")
	})

	t.Run("unknown tool", func(t *testing.T) {
		code, _, stderr := runCLI(t, "call", "--config", path, "wiki", "delete_page")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Method delete_page not found")
	})

	t.Run("unknown server", func(t *testing.T) {
		code, _, stderr := runCLI(t, "call", "--config", path, "jira", "search")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Tool jira not found.")
	})
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	// 非法级别回退到 info
	logger = initLogger(config.LogConfig{Level: "loud", Format: "json"})
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
