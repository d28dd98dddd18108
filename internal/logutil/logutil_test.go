package logutil_test

import (
	"testing"

	"github.com/signalnine/benchtrace/internal/logutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := logutil.Init("chatty")
	require.Error(t, err)
}

func TestSetRoutesEntries(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := logutil.L()
	logutil.Set(zap.New(core))
	t.Cleanup(func() { logutil.Set(prev) })

	logutil.L().Info("session started", zap.String("unit", "sort"))

	entries := logs.FilterMessage("session started").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sort", entries[0].ContextMap()["unit"])
}
