package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "ingest:doc_1", Key("ingest", "doc_1"))
}

func TestLocalBusyWithoutWait(t *testing.T) {
	l := NewLocal()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLease(context.Background(), "k", Options{}, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := l.WithLease(context.Background(), "k", Options{}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
}

func TestLocalSerialisesWaiters(t *testing.T) {
	l := NewLocal()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLease(context.Background(), "k", Options{Wait: true}, func(context.Context) error {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalPropagatesError(t *testing.T) {
	l := NewLocal()
	boom := errors.New("boom")

	err := l.WithLease(context.Background(), "k", Options{}, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	// released after failure
	require.NoError(t, l.WithLease(context.Background(), "k", Options{}, func(context.Context) error { return nil }))
}
