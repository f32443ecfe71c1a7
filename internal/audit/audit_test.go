package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndRecent(t *testing.T) {
	l := NewLog(10)

	l.Append(EventMessageProcessed, "user-1", map[string]interface{}{"n": 1})
	l.Append(EventMessageRejected, "user-2", map[string]interface{}{"n": 2})

	assert.Equal(t, 2, l.Len())

	events := l.Recent(10)
	require.Len(t, events, 2)
	assert.Equal(t, EventMessageProcessed, events[0].Type)
	assert.Equal(t, EventMessageRejected, events[1].Type)
	assert.Equal(t, "user-2", events[1].UserID)
}

func TestLog_RecentLimit(t *testing.T) {
	l := NewLog(100)

	for i := range 10 {
		l.Append(EventMessageProcessed, fmt.Sprintf("user-%d", i), nil)
	}

	events := l.Recent(3)
	require.Len(t, events, 3)
	assert.Equal(t, "user-7", events[0].UserID)
	assert.Equal(t, "user-9", events[2].UserID)
}

func TestLog_EvictsOldestHalfAtCapacity(t *testing.T) {
	l := NewLog(10)

	for i := range 11 {
		l.Append(EventMessageProcessed, fmt.Sprintf("user-%d", i), nil)
	}

	// Exceeding the cap trims to half, keeping the newest entries.
	assert.Equal(t, 5, l.Len())
	events := l.Recent(0)
	assert.Equal(t, "user-6", events[0].UserID)
	assert.Equal(t, "user-10", events[4].UserID)
}

func TestLog_CountSince(t *testing.T) {
	l := NewLog(10)

	l.Append(EventConnectionEstablished, "user-1", nil)
	l.Append(EventConnectionClosed, "user-1", nil)

	assert.Equal(t, 2, l.CountSince(time.Hour))
	assert.Equal(t, 0, l.CountSince(-time.Second))
}

func TestLog_ConcurrentAppends(t *testing.T) {
	l := NewLog(1000)

	done := make(chan struct{}, 10)
	for range 10 {
		go func() {
			for range 50 {
				l.Append(EventMessageProcessed, "user", nil)
			}
			done <- struct{}{}
		}()
	}
	for range 10 {
		<-done
	}

	assert.Equal(t, 500, l.Len())
}
