package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsync/client"
)

// pollUntil 每毫秒 Poll 一次，直到 cond 成立
func pollUntil(t *testing.T, c *client.Store, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		for {
			updated, err := c.Poll()
			if err != nil || !updated {
				break
			}
		}
		return cond()
	}, 3*time.Second, time.Millisecond)
}

func TestUDPRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.TickPeriod = 20 * time.Millisecond

	s, err := Listen(cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	defer func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	}()

	a, err := client.Dial(s.Addr().String(), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SendJoin())
	pollUntil(t, a, func() bool { _, ok := a.Self(); return ok })
	assert.Empty(t, a.Remotes())
	idA, _ := a.Self()

	require.NoError(t, a.SendMove([3]float32{1, 0, 0}, [3]float32{}, 0, 0))

	b, err := client.Dial(s.Addr().String(), nil)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.SendJoin())

	pollUntil(t, b, func() bool {
		p, ok := b.Remote(idA)
		return ok && p.Position == [3]float32{1, 0, 0}
	})
	idB, ok := b.Self()
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)

	require.NoError(t, a.SendLeave())
	pollUntil(t, b, func() bool {
		_, ok := b.Remote(idA)
		return !ok
	})
}
