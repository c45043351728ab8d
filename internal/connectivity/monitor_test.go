package connectivity

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_NotifiesOnlyOnTransitions(t *testing.T) {
	m := NewMonitor(nil, true, logging.NewMockLogger())
	var got []bool
	m.OnChange(func(offline bool) { got = append(got, offline) })

	assert.False(t, m.SetOffline(true))
	assert.True(t, m.SetOffline(false))
	assert.False(t, m.SetOffline(false))
	assert.True(t, m.SetOffline(true))
	assert.True(t, m.SetOffline(false))

	assert.Equal(t, []bool{false, true, false}, got)
	assert.False(t, m.IsOffline())
}

// Rapid flapping from many goroutines must produce exactly one online
// notification per offline to online transition.
func TestMonitor_ExactlyOneReconnectPerTransition(t *testing.T) {
	m := NewMonitor(nil, true, nil)
	var reconnects, disconnects atomic.Int32
	m.OnChange(func(offline bool) {
		if offline {
			disconnects.Add(1)
		} else {
			reconnects.Add(1)
		}
	})

	var transitions atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.SetOffline(i%2 == 0) {
				transitions.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, transitions.Load(), reconnects.Load()+disconnects.Load())
	diff := reconnects.Load() - disconnects.Load()
	if m.IsOffline() {
		assert.Equal(t, int32(0), diff)
	} else {
		assert.Equal(t, int32(1), diff)
	}
}

func TestMonitor_CheckUsesProbe(t *testing.T) {
	up := false
	m := NewMonitor(func(context.Context) bool { return up }, false, nil)

	assert.True(t, m.Check(context.Background()))
	assert.True(t, m.IsOffline())
	up = true
	assert.True(t, m.Check(context.Background()))
	assert.False(t, m.IsOffline())
	assert.False(t, m.Check(context.Background()))
}

func TestMonitor_CheckWithoutProbe(t *testing.T) {
	m := NewMonitor(nil, true, nil)
	assert.False(t, m.Check(context.Background()))
	assert.True(t, m.IsOffline())
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	probe := TCPProbe(addr, time.Second)
	assert.True(t, probe(context.Background()))

	require.NoError(t, ln.Close())
	assert.False(t, probe(context.Background()))
}

func TestMonitor_Schedule(t *testing.T) {
	s := scheduler.New(nil)
	var calls atomic.Int32
	m := NewMonitor(func(context.Context) bool {
		calls.Add(1)
		return true
	}, true, nil)

	require.NoError(t, m.Schedule(s, time.Second))
	assert.Contains(t, s.Jobs(), ProbeJob)

	s.Start()
	require.Eventually(t, func() bool { return !m.IsOffline() }, 3*time.Second, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}
