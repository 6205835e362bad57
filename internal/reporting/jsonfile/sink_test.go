package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
)

func TestSink(t *testing.T) {
	ctx := context.Background()

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := NewSink("")
		require.Error(t, err)
	})

	t.Run("appends one json line per event", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events", "boot.jsonl")
		sink, err := NewSink(path)
		require.NoError(t, err)

		events := []domain.Event{
			{Timestamp: time.Now().UTC(), Stage: domain.StageLocal, Outcome: domain.EventStart},
			{Timestamp: time.Now().UTC(), Stage: domain.StageLocal, Module: "hostname", Outcome: domain.EventSuccess, DurationMs: 3},
			{Timestamp: time.Now().UTC(), Stage: domain.StageLocal, Outcome: domain.EventSuccess, DurationMs: 5},
		}
		for _, e := range events {
			require.NoError(t, sink.Record(ctx, e))
		}

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
		require.Len(t, lines, 3)

		var decoded domain.Event
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
		assert.Equal(t, "hostname", decoded.Module)
		assert.Equal(t, domain.EventSuccess, decoded.Outcome)
		assert.Equal(t, int64(3), decoded.DurationMs)
	})
}
