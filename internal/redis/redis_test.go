package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestLease_SingleOwner(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)

	first, err := AcquireLease(ctx, rdb, "dentepro", 10*time.Second)
	require.NoError(t, err)

	_, err = AcquireLease(ctx, rdb, "dentepro", 10*time.Second)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	other, err := AcquireLease(ctx, rdb, "another-clinic", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Refresh(ctx))
	assert.Equal(t, 10*time.Second, mr.TTL("lease:clinic:dentepro"))

	require.NoError(t, first.Release(ctx))
	second, err := AcquireLease(ctx, rdb, "dentepro", 10*time.Second)
	require.NoError(t, err)

	// The old holder can neither extend nor drop the new lease.
	assert.ErrorIs(t, first.Refresh(ctx), ErrLeaseLost)
	require.NoError(t, first.Release(ctx))
	assert.True(t, mr.Exists("lease:clinic:dentepro"))
	require.NoError(t, second.Release(ctx))
}

func TestLease_ExpiredIsLost(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)

	l, err := AcquireLease(ctx, rdb, "dentepro", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	assert.ErrorIs(t, l.Refresh(ctx), ErrLeaseLost)
}

func TestLease_KeepReportsLoss(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mr, rdb := newTestClient(t)

	l, err := AcquireLease(ctx, rdb, "dentepro", 300*time.Millisecond)
	require.NoError(t, err)
	mr.Del("lease:clinic:dentepro")

	lost := make(chan error, 1)
	go l.Keep(ctx, func(err error) { lost <- err })

	select {
	case err := <-lost:
		assert.True(t, errors.Is(err, ErrLeaseLost))
	case <-ctx.Done():
		t.Fatal("lease loss was not reported")
	}
}

func TestStreamPublisher(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)

	p := NewStreamPublisher(rdb, "dentepro", 100)
	require.NoError(t, p.Publish(ctx, "APPOINTMENT_BOOKED", "appt-1", []byte(`{"start":"09:00"}`)))
	require.NoError(t, p.Publish(ctx, "APPOINTMENT_CANCELED", "appt-1", nil))

	msgs, err := rdb.XRange(ctx, StreamKey("dentepro"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "APPOINTMENT_BOOKED", msgs[0].Values["type"])
	assert.Equal(t, "appt-1", msgs[0].Values["appointment_id"])
	assert.Equal(t, `{"start":"09:00"}`, msgs[0].Values["payload"])
}
