package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/custodia/internal/storage"
)

type failingSink struct{}

func (failingSink) Emit(ctx context.Context, event Event) error {
	return errors.New("sink unavailable")
}

func testEvent() Event {
	return Event{
		Actor:     "cli",
		Operation: "transit.encrypt",
		Resource:  "transit/keys/payments",
		Result:    ResultSuccess,
		Timestamp: time.Now().UTC(),
	}
}

func TestRecorder_FailModes(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("FailClosedBlocksOnSinkFailure", func(t *testing.T) {
		recorder := NewRecorder(failingSink{}, FailClosed, logger)
		err := recorder.Record(ctx, testEvent())
		assert.ErrorIs(t, err, ErrAuditUnavailable)
	})

	t.Run("FailOpenSwallowsSinkFailure", func(t *testing.T) {
		recorder := NewRecorder(failingSink{}, FailOpen, logger)
		assert.NoError(t, recorder.Record(ctx, testEvent()))
	})

	t.Run("SuccessfulEmit", func(t *testing.T) {
		recorder := NewRecorder(NewSlogSink(logger), FailClosed, logger)
		assert.NoError(t, recorder.Record(ctx, testEvent()))
	})
}

// staticKeySource hands out a fixed signing key, or an error when set.
type staticKeySource struct {
	key []byte
	err error
}

func (s *staticKeySource) AuditSigningKey() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, nil
}

func testKeySource(t *testing.T) *staticKeySource {
	t.Helper()
	barrierKey := bytes.Repeat([]byte{0x42}, 32)
	key, err := DeriveSigningKey(barrierKey)
	require.NoError(t, err)
	return &staticKeySource{key: key}
}

func TestStorageSink_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("UnsignedWithoutKeySource", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		sink := NewStorageSink(backend)

		require.NoError(t, sink.Emit(ctx, testEvent()))

		keys, err := backend.List(ctx, storage.AuditPrefix)
		require.NoError(t, err)
		require.Len(t, keys, 1)

		raw, err := backend.Get(ctx, keys[0])
		require.NoError(t, err)
		var record SignedEvent
		require.NoError(t, json.Unmarshal(raw, &record))
		assert.Empty(t, record.Signature)
	})

	t.Run("SignedWithKeySource", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		sink := NewStorageSink(backend)
		sink.BindKeySource(testKeySource(t))

		event := testEvent()
		require.NoError(t, sink.Emit(ctx, event))

		keys, err := backend.List(ctx, storage.AuditPrefix)
		require.NoError(t, err)
		require.Len(t, keys, 1)

		raw, err := backend.Get(ctx, keys[0])
		require.NoError(t, err)
		var record SignedEvent
		require.NoError(t, json.Unmarshal(raw, &record))
		require.Len(t, record.Signature, 32)

		source := testKeySource(t)
		ok, err := NewEventSigner().Verify(source.key, &record.Event, record.Signature)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("UnsignedWhileKeyUnavailable", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		sink := NewStorageSink(backend)
		sink.BindKeySource(&staticKeySource{err: errors.New("sealed")})

		require.NoError(t, sink.Emit(ctx, testEvent()))

		keys, err := backend.List(ctx, storage.AuditPrefix)
		require.NoError(t, err)
		require.Len(t, keys, 1)

		raw, err := backend.Get(ctx, keys[0])
		require.NoError(t, err)
		var record SignedEvent
		require.NoError(t, json.Unmarshal(raw, &record))
		assert.Empty(t, record.Signature)
	})
}

func TestEventSigner_SignVerify(t *testing.T) {
	signer := NewEventSigner()
	signingKey, err := DeriveSigningKey(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	event := testEvent()

	sig, err := signer.Sign(signingKey, &event)
	require.NoError(t, err)
	require.Len(t, sig, 32)

	ok, err := signer.Verify(signingKey, &event, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := event
	tampered.Result = ResultFailure
	ok, err = signer.Verify(signingKey, &tampered, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	// a different barrier key derives a different signing key
	otherKey, err := DeriveSigningKey(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)
	ok, err = signer.Verify(otherKey, &event, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTrail(t *testing.T) {
	ctx := context.Background()

	emit := func(t *testing.T, sink *StorageSink, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			event := testEvent()
			event.Resource = fmt.Sprintf("transit/keys/payments-%d", i)
			require.NoError(t, sink.Emit(ctx, event))
		}
	}

	t.Run("AllSignedRecordsVerify", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		sink := NewStorageSink(backend)
		sink.BindKeySource(testKeySource(t))
		emit(t, sink, 3)

		report, err := VerifyTrail(ctx, backend, testKeySource(t))
		require.NoError(t, err)
		assert.Equal(t, 3, report.TotalChecked)
		assert.Equal(t, 3, report.SignedCount)
		assert.Equal(t, 3, report.ValidCount)
		assert.Zero(t, report.InvalidCount)
		assert.True(t, report.Passed())
	})

	t.Run("TamperedRecordDetected", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		sink := NewStorageSink(backend)
		sink.BindKeySource(testKeySource(t))
		emit(t, sink, 2)

		keys, err := backend.List(ctx, storage.AuditPrefix)
		require.NoError(t, err)
		require.Len(t, keys, 2)

		raw, err := backend.Get(ctx, keys[0])
		require.NoError(t, err)
		var record SignedEvent
		require.NoError(t, json.Unmarshal(raw, &record))
		record.Event.Result = ResultFailure
		tampered, err := json.Marshal(record)
		require.NoError(t, err)
		require.NoError(t, backend.Put(ctx, keys[0], tampered))

		report, err := VerifyTrail(ctx, backend, testKeySource(t))
		require.NoError(t, err)
		assert.Equal(t, 2, report.TotalChecked)
		assert.Equal(t, 1, report.ValidCount)
		assert.Equal(t, 1, report.InvalidCount)
		assert.Equal(t, []string{keys[0]}, report.InvalidKeys)
		assert.False(t, report.Passed())
	})

	t.Run("UnsignedRecordsCountedNotFailed", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		sink := NewStorageSink(backend)
		emit(t, sink, 1)
		sink.BindKeySource(testKeySource(t))
		emit(t, sink, 1)

		report, err := VerifyTrail(ctx, backend, testKeySource(t))
		require.NoError(t, err)
		assert.Equal(t, 2, report.TotalChecked)
		assert.Equal(t, 1, report.UnsignedCount)
		assert.Equal(t, 1, report.ValidCount)
		assert.True(t, report.Passed())
	})

	t.Run("KeyUnavailable", func(t *testing.T) {
		backend := storage.NewMemoryBackend()
		_, err := VerifyTrail(ctx, backend, &staticKeySource{err: errors.New("sealed")})
		require.Error(t, err)
	})
}
