//go:build unix

package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/taskforce/types"
)

func TestStdioTransport_TimeoutKillsChildren(t *testing.T) {
	// sh 派生的 sleep 继承 stdout；只杀 sh 时 Run 要等到 sleep 结束或 WaitDelay 到期
	tr, err := NewStdioTransport(TransportConfig{
		Command: "sh",
		Args:    []string{"-c", "sleep 30; echo '{}'"},
		Timeout: 1,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.SendRequest(context.Background(), tr.NewRequest(MethodToolsList, nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.Less(t, time.Since(start), time.Second+processWaitDelay)
}
