package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	InitWithWriter(buf, level, format)
	t.Cleanup(func() {
		InitWithWriter(bytes.NewBuffer(nil), "INFO", "text")
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Debug("too quiet")
	Info("loud enough")

	out := buf.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
}

func TestSetLevelEnablesDebug(t *testing.T) {
	buf := capture(t, "INFO", "text")

	SetLevel("DEBUG")
	Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	buf := capture(t, "INFO", "text")

	SetLevel("VERBOSE")
	Debug("still filtered")
	Info("still logged")

	out := buf.String()
	assert.NotContains(t, out, "still filtered")
	assert.Contains(t, out, "still logged")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "INFO", "json")

	Info("commit finished", "files", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "commit finished", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, float64(3), record["files"])
}

func TestSetFormatIgnoresUnknown(t *testing.T) {
	buf := capture(t, "INFO", "text")

	SetFormat("xml")
	Info("unchanged")
	assert.Contains(t, buf.String(), "msg=unchanged")
}

func TestCtxVariantsInjectRequestFields(t *testing.T) {
	buf := capture(t, "INFO", "json")

	ctx := WithContext(context.Background(), &LogContext{
		RequestID: "req-42",
		Username:  "alice",
		ClientIP:  "10.0.0.7",
	})
	InfoCtx(ctx, "upload staged", "path", "songs/intro.txt")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-42", record["request_id"])
	assert.Equal(t, "alice", record["username"])
	assert.Equal(t, "10.0.0.7", record["client_ip"])
	assert.Equal(t, "songs/intro.txt", record["path"])
}

func TestCtxVariantsWithoutLogContext(t *testing.T) {
	buf := capture(t, "INFO", "json")

	WarnCtx(context.Background(), "lock contention", "holder", "bob")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "lock contention", record["msg"])
	assert.Equal(t, "bob", record["holder"])
	_, present := record["request_id"]
	assert.False(t, present)
}

func TestFromContextNil(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, FromContext(nil)) //nolint:staticcheck
}
