package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())
	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestNotificationAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "record_id", logger.RecordID("r1").Key)
	assert.True(t, logger.RecordID(nil).Equal(slog.Attr{}))
	assert.Equal(t, "welcome", logger.NotificationType("welcome").Value.String())
	assert.Equal(t, "channel", logger.Channel("email").Key)
	assert.Equal(t, "status", logger.Status("sent").Key)
	assert.True(t, logger.WorkerID(nil).Equal(slog.Attr{}))
	assert.True(t, logger.TenantID(nil).Equal(slog.Attr{}))
	assert.Equal(t, "request_id", logger.RequestID("abc").Key)
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())

	attempts := logger.Attempts(2, 5)
	require.Equal(t, slog.KindGroup, attempts.Value.Kind())
	assert.Equal(t, int64(2), attempts.Value.Group()[0].Value.Int64())

	loc := logger.Locale("fr", "PARAMS")
	assert.Equal(t, "fr", loc.Value.Group()[0].Value.String())
}
