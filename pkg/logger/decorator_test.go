package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestRecordExtractor(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(logger.RecordExtractor()),
	)

	ctx := logger.WithRecord(context.Background(), logger.RecordID("r-1"))
	ctx = logger.WithRecord(ctx, logger.Channel("sms"))
	log.InfoContext(ctx, "processing")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	group, ok := entry["notification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "r-1", group["record_id"])
	assert.Equal(t, "sms", group["channel"])

	buf.Reset()
	log.Info("no record")
	assert.NotContains(t, buf.String(), "notification")
}

func TestWithRecordNoAttrs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Equal(t, ctx, logger.WithRecord(ctx))
}
