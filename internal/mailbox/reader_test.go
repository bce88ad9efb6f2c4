package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	calls atomic.Int32
	raws  []RawMessage
	err   error
}

func (s *fakeStore) FetchRaw(_ context.Context, _ ConnectionParams, _ int) ([]RawMessage, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.raws, nil
}

func rawMessage(id, subject string) RawMessage {
	return RawMessage{
		ID:   id,
		Data: crlf(fmt.Sprintf("\nFrom: sender%s@example.com\nSubject: %s\n\nbody %s\n", id, subject, id)),
	}
}

var testParams = ConnectionParams{
	Server:   "imap.example.com",
	Port:     993,
	Username: "bot@example.com",
	Password: "secret",
	Folder:   "INBOX",
}

func TestReaderCachesWithinTTL(t *testing.T) {
	store := &fakeStore{raws: []RawMessage{rawMessage("1", "a"), rawMessage("2", "b")}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := NewReader(store, NewMemoryCacheWithClock(5*time.Minute, clock.Now), nil)
	ctx := context.Background()

	first, err := r.Fetch(ctx, testParams, 5)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Messages, 2)

	second, err := r.Fetch(ctx, testParams, 5)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, int32(1), store.calls.Load())

	clock.Advance(5 * time.Minute)
	third, err := r.Fetch(ctx, testParams, 5)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestReaderParamChangeMissesCache(t *testing.T) {
	store := &fakeStore{raws: []RawMessage{rawMessage("1", "a")}}
	r := NewReader(store, NewMemoryCache(time.Minute), nil)
	ctx := context.Background()

	_, err := r.Fetch(ctx, testParams, 5)
	require.NoError(t, err)

	other := testParams
	other.Folder = "Support"
	_, err = r.Fetch(ctx, other, 5)
	require.NoError(t, err)

	_, err = r.Fetch(ctx, testParams, 10)
	require.NoError(t, err)

	assert.Equal(t, int32(3), store.calls.Load())
}

func TestReaderSkipsUnparseableMessages(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &fakeStore{raws: []RawMessage{
		rawMessage("1", "a"),
		{ID: "2", Data: []byte("this is not a header line\r\n\r\nbody")},
		rawMessage("3", "c"),
	}}
	r := NewReader(store, nil, zap.New(core))

	batch, err := r.Fetch(context.Background(), testParams, 5)
	require.NoError(t, err)

	require.Len(t, batch.Messages, 2)
	assert.Equal(t, "1", batch.Messages[0].ID)
	assert.Equal(t, "3", batch.Messages[1].ID)
	assert.Equal(t, 1, batch.Skipped)
	assert.Equal(t, 1, logs.FilterMessage("Skipping unparseable message").Len())
}

func TestReaderSurvivesUnknownTransferEncoding(t *testing.T) {
	store := &fakeStore{raws: []RawMessage{
		{ID: "1", Data: crlf("\nFrom: a@example.com\nSubject: weird\nContent-Transfer-Encoding: x-weird\n\nzzz\n")},
		rawMessage("2", "fine"),
	}}
	r := NewReader(store, nil, nil)

	var batch Batch
	var err error
	require.NotPanics(t, func() { batch, err = r.Fetch(context.Background(), testParams, 5) })
	require.NoError(t, err)

	assert.Equal(t, 2, len(batch.Messages)+batch.Skipped)
	require.NotEmpty(t, batch.Messages)
	assert.Equal(t, "2", batch.Messages[len(batch.Messages)-1].ID)
}

func TestReaderEnforcesLimit(t *testing.T) {
	store := &fakeStore{raws: []RawMessage{
		rawMessage("1", "a"), rawMessage("2", "b"), rawMessage("3", "c"),
	}}
	r := NewReader(store, nil, nil)

	batch, err := r.Fetch(context.Background(), testParams, 2)
	require.NoError(t, err)
	require.Len(t, batch.Messages, 2)
	assert.Equal(t, "2", batch.Messages[0].ID)
	assert.Equal(t, "3", batch.Messages[1].ID)
}

func TestReaderErrorsAreTypedAndNotCached(t *testing.T) {
	store := &fakeStore{err: &FetchError{Kind: KindAuth, Err: errors.New("bad credentials")}}
	cache := NewMemoryCache(time.Minute)
	r := NewReader(store, cache, nil)
	ctx := context.Background()

	_, err := r.Fetch(ctx, testParams, 5)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))

	_, err = r.Fetch(ctx, testParams, 5)
	require.Error(t, err)
	assert.Equal(t, int32(2), store.calls.Load())
	_, cached := cache.Get(ctx, Fingerprint(testParams, 5))
	assert.False(t, cached)
}

func TestReaderWrapsUntypedStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("garbled response")}
	r := NewReader(store, nil, nil)

	_, err := r.Fetch(context.Background(), testParams, 5)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindProtocol, fe.Kind)
	assert.EqualError(t, fe.Err, "garbled response")
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint(testParams, 5)
	assert.Equal(t, base, Fingerprint(testParams, 5))
	assert.Len(t, base, 64)
	assert.NotContains(t, base, "secret")

	changed := testParams
	changed.Password = "rotated"
	assert.NotEqual(t, base, Fingerprint(changed, 5))

	changed = testParams
	changed.Port = 143
	assert.NotEqual(t, base, Fingerprint(changed, 5))

	assert.NotEqual(t, base, Fingerprint(testParams, 6))
}
