package logging

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogrusAdapter(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		expectLevel logrus.Level
	}{
		{name: "debug level with text format", level: "debug", format: "text", expectLevel: logrus.DebugLevel},
		{name: "info level with json format", level: "info", format: "json", expectLevel: logrus.InfoLevel},
		{name: "warn level with text format", level: "warn", format: "text", expectLevel: logrus.WarnLevel},
		{name: "invalid level defaults to info", level: "invalid", format: "text", expectLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogrusAdapter(tt.level, tt.format)
			require.NotNil(t, logger)

			adapter, ok := logger.(*LogrusAdapter)
			require.True(t, ok, "logger should be a LogrusAdapter")
			assert.Equal(t, tt.expectLevel, adapter.logger.Level)

			if tt.format == "json" {
				_, ok := adapter.logger.Formatter.(*logrus.JSONFormatter)
				assert.True(t, ok, "formatter should be JSONFormatter")
			} else {
				_, ok := adapter.logger.Formatter.(*logrus.TextFormatter)
				assert.True(t, ok, "formatter should be TextFormatter")
			}
		})
	}
}

func TestNewLogrusAdapterFromLogger_NilCreatesNew(t *testing.T) {
	logger := NewLogrusAdapterFromLogger(nil)
	adapter, ok := logger.(*LogrusAdapter)
	require.True(t, ok)
	assert.NotNil(t, adapter.logger)
}

func TestLogrusAdapter_ChainedCalls(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusAdapterWithOutput("info", "text", &buf)

	logger.
		WithField(FieldOpType, "ADD_TRANSACTION").
		WithFields(F(FieldOpID, "01HX")).
		WithError(errors.New("remote unavailable")).
		Warn("remote call failed, queued for retry")

	output := buf.String()
	assert.Contains(t, output, "remote call failed, queued for retry")
	assert.Contains(t, output, "ADD_TRANSACTION")
	assert.Contains(t, output, "01HX")
	assert.Contains(t, output, "remote unavailable")
}

func TestLogrusAdapter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusAdapterWithOutput("warn", "json", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNop_DiscardsOutput(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().WithField("k", "v").Error("nothing to see")
	})
}

func TestConvertFields(t *testing.T) {
	logrusFields := convertFields([]Field{F("key1", "value1"), F("key2", 42)})
	assert.Len(t, logrusFields, 2)
	assert.Equal(t, "value1", logrusFields["key1"])
	assert.Equal(t, 42, logrusFields["key2"])
}

func TestMockLogger_SharedSinkAndConcurrency(t *testing.T) {
	mock := NewMockLogger()
	child := mock.WithField(FieldOwner, "user-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child.Info("drained")
		}()
	}
	wg.Wait()

	entries := mock.GetEntriesByLevel("INFO")
	require.Len(t, entries, 20)
	assert.Equal(t, FieldOwner, entries[0].Fields[0].Key)
	assert.True(t, mock.HasEntry("INFO", "drained"))

	mock.Clear()
	assert.Empty(t, mock.GetEntries())
}

func TestLogrusAdapter_ImplementsInterface(t *testing.T) {
	var _ Logger = (*LogrusAdapter)(nil)
	var _ Logger = (*MockLogger)(nil)
}

func TestOp_FieldsFollowAnOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusAdapterWithOutput("debug", "json", &buf)
	logger.Debug("Operation queued", Op("01HX", "SET_BUDGET", "setting:budget")...)

	output := buf.String()
	assert.Contains(t, output, `"op_id":"01HX"`)
	assert.Contains(t, output, `"op_type":"SET_BUDGET"`)
	assert.Contains(t, output, `"entity":"setting:budget"`)

	mock := NewMockLogger()
	mock.Warn("failed", Op("01HY", "ADD_TRANSACTION", "transaction:t1")...)
	entries := mock.GetEntriesByLevel("WARN")
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Fields, 3)
	assert.Equal(t, FieldEntity, entries[0].Fields[2].Key)
}
