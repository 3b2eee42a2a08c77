package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafkago.Message
	err  error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	event := ArtifactReady{
		Kind:        KindCounts,
		Path:        "/data/counts/2024/counts_20240305_00_30h.nc",
		InitTime:    time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		LeadHours:   30,
		Members:     50,
		PublishedAt: now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte(event.Path), msg.Key)
	assert.JSONEq(t, `{
		"kind": "counts",
		"path": "/data/counts/2024/counts_20240305_00_30h.nc",
		"init_time": "2024-03-05T00:00:00Z",
		"lead_hours": 30,
		"members": 50,
		"published_at": "2024-03-05T09:30:00Z"
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("counts"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestWriter_Publish(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	rec := &recordingWriter{}
	w := &Writer{writer: rec, clock: clock, logger: discardLogger()}

	require.NoError(t, w.Publish(context.Background()))
	assert.Empty(t, rec.msgs)

	err := w.Publish(context.Background(),
		ArtifactReady{Kind: KindCounts, Path: "a.nc", LeadHours: 30},
		ArtifactReady{Kind: KindCounts, Path: "b.nc", LeadHours: 36},
	)
	require.NoError(t, err)
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, []byte("b.nc"), rec.msgs[1].Key)
	assert.Contains(t, string(rec.msgs[0].Value), `"published_at":"2024-03-05T10:00:00Z"`)
}

func TestWriter_PublishError(t *testing.T) {
	rec := &recordingWriter{err: errors.New("broker down")}
	w := &Writer{writer: rec, clock: clockwork.NewFakeClock(), logger: discardLogger()}
	err := w.Publish(context.Background(), ArtifactReady{Kind: KindForecast, Path: "f.nc"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), ArtifactReady{}))
	assert.NoError(t, p.Close())
}
