package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := NewWithFilter(buf, DebugLevel, "json", "info+:* debug:*,-cache")
	require.NoError(t, err)

	l.Named("cache").Debug("hidden")
	l.Named("cache").Info("cache info")
	l.Named("fetch").Debug("visible")
	require.NoError(t, l.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "cache info")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewWithFilterExcludeLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := NewWithFilter(buf, DebugLevel, "json", "*:*,-cache")
	require.NoError(t, err)

	l.Named("cache").Warn("hidden")
	l.Named("view").Debug("visible")
	require.NoError(t, l.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewWithFilterInvalidRules(t *testing.T) {
	_, err := NewWithFilter(&bytes.Buffer{}, InfoLevel, "json", "loud:cache")
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	assert.Same(t, Default(), GetFromContext(context.Background()))

	l := New(&bytes.Buffer{}, WarnLevel)
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
	assert.Equal(t, WarnLevel, GetFromContext(ctx).Level())
}
