package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	"github.com/Guizzs26/ndw-archiver/pkg/infra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	healthy   bool
	closed    bool
	published []broadcast.Publication
}

func (f *fakeLink) Publish(_ context.Context, p broadcast.Publication) error {
	f.published = append(f.published, p)
	return nil
}

func (f *fakeLink) IsHealthy() bool { return f.healthy }

func (f *fakeLink) Close() error {
	f.closed = true
	return nil
}

type dialer struct {
	links []*fakeLink
	err   error
	calls int
}

func (d *dialer) dial() (Link, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	l := &fakeLink{healthy: true}
	d.links = append(d.links, l)
	return l, nil
}

func newTestReconnecting(d *dialer, clock *time.Time) *ReconnectingPublisher {
	b := infra.NewBackoff(time.Second, time.Minute, 2.0, infra.WithRandom(func() float64 { return 0.5 }))
	r := NewReconnectingPublisher(d.dial, b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return *clock }
	return r
}

func TestReconnecting_ReusesHealthyLink(t *testing.T) {
	clock := time.Date(2024, time.March, 7, 10, 0, 0, 0, time.UTC)
	d := &dialer{}
	r := newTestReconnecting(d, &clock)

	require.NoError(t, r.Publish(context.Background(), broadcast.Publication{ID: "1"}))
	require.NoError(t, r.Publish(context.Background(), broadcast.Publication{ID: "2"}))

	assert.Equal(t, 1, d.calls)
	assert.Len(t, d.links[0].published, 2)
	assert.True(t, r.IsHealthy())
}

func TestReconnecting_RedialsAfterLinkDrops(t *testing.T) {
	clock := time.Date(2024, time.March, 7, 10, 0, 0, 0, time.UTC)
	d := &dialer{}
	r := newTestReconnecting(d, &clock)

	require.NoError(t, r.Connect())
	d.links[0].healthy = false
	assert.False(t, r.IsHealthy())

	require.NoError(t, r.Publish(context.Background(), broadcast.Publication{ID: "after-restart"}))

	require.Len(t, d.links, 2)
	assert.True(t, d.links[0].closed, "stale link should be closed")
	assert.Empty(t, d.links[0].published)
	assert.Equal(t, "after-restart", d.links[1].published[0].ID)
}

func TestReconnecting_FailedDialWaitsForBackoff(t *testing.T) {
	clock := time.Date(2024, time.March, 7, 10, 0, 0, 0, time.UTC)
	d := &dialer{err: errors.New("connection refused")}
	r := newTestReconnecting(d, &clock)

	err := r.Publish(context.Background(), broadcast.Publication{ID: "1"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")

	// inside the 1s window no dial is attempted
	err = r.Publish(context.Background(), broadcast.Publication{ID: "2"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, 1, d.calls)

	d.err = nil
	clock = clock.Add(2 * time.Second)

	require.NoError(t, r.Publish(context.Background(), broadcast.Publication{ID: "3"}))
	assert.Equal(t, 2, d.calls)
	assert.Equal(t, "3", d.links[0].published[0].ID)
}

func TestReconnecting_BackoffGrowsAcrossFailures(t *testing.T) {
	clock := time.Date(2024, time.March, 7, 10, 0, 0, 0, time.UTC)
	d := &dialer{err: errors.New("connection refused")}
	r := newTestReconnecting(d, &clock)

	require.Error(t, r.Connect())
	clock = clock.Add(1500 * time.Millisecond)
	require.Error(t, r.Connect())
	assert.Equal(t, 2, d.calls)

	// second failure pushes the next dial 2s out
	clock = clock.Add(1500 * time.Millisecond)
	require.Error(t, r.Connect())
	assert.Equal(t, 2, d.calls)
}

func TestReconnecting_CloseReleasesLink(t *testing.T) {
	clock := time.Date(2024, time.March, 7, 10, 0, 0, 0, time.UTC)
	d := &dialer{}
	r := newTestReconnecting(d, &clock)
	require.NoError(t, r.Connect())

	require.NoError(t, r.Close())

	assert.True(t, d.links[0].closed)
	assert.False(t, r.IsHealthy())
	require.NoError(t, r.Close())
}
