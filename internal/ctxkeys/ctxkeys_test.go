package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	_, ok := RequestID(ctx)
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(ctx, ""))
	assert.False(t, ok)

	id, ok := RequestID(WithRequestID(ctx, "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestSubject(t *testing.T) {
	ctx := WithSubject(WithRequestID(context.Background(), "req-1"), "ci-bot")

	sub, ok := Subject(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ci-bot", sub)

	id, _ := RequestID(ctx)
	assert.Equal(t, "req-1", id)
}
