package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSink struct {
	mu     sync.Mutex
	frames []OutboundFrame
}

func (f *fakeSink) Send(frame OutboundFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeSink) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.Type
	}
	return out
}

func newRunningHub(t *testing.T) (*Hub, func()) {
	t.Helper()
	hub := NewHub(nil, nil, "test-instance")
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	return hub, func() {
		cancel()
		wg.Wait()
	}
}

func TestHub_ConnectAndDisconnect(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sink := &fakeSink{}
	hub.Connect("user-1", "sess-1", sink, time.Now())
	assert.Equal(t, 1, hub.ConnectionCount())

	hub.Disconnect(context.Background(), "user-1", "sess-1")
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_EvictsOldestSessionPastCap(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	var sinks []*fakeSink
	for i := 0; i < maxSessionsPerUser; i++ {
		sink := &fakeSink{}
		sinks = append(sinks, sink)
		hub.Connect("user-1", string(rune('a'+i)), sink, time.Now())
	}
	assert.Equal(t, maxSessionsPerUser, hub.ConnectionCount())

	newSink := &fakeSink{}
	hub.Connect("user-1", "newest", newSink, time.Now())

	assert.Equal(t, maxSessionsPerUser, hub.ConnectionCount(), "cap is not exceeded")
	assert.Contains(t, sinks[0].Types(), OutConnectionReplaced, "oldest session is told it was replaced")
}

func TestHub_JoinRoomSendsPresenceAndJoined(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sink := &fakeSink{}
	hub.Connect("user-1", "sess-1", sink, time.Now())
	hub.JoinRoom("user-1", "room-1")

	types := sink.Types()
	assert.Contains(t, types, OutRoomPresence)
	assert.Contains(t, types, OutJoined)
}

func TestHub_JoinRoomNotifiesExistingMembers(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sinkA := &fakeSink{}
	sinkB := &fakeSink{}
	hub.Connect("user-a", "sess-a", sinkA, time.Now())
	hub.Connect("user-b", "sess-b", sinkB, time.Now())

	hub.JoinRoom("user-a", "room-1")
	hub.JoinRoom("user-b", "room-1")

	assert.Contains(t, sinkA.Types(), OutUserOnline, "existing member is told about the newcomer")
}

func TestHub_BroadcastToRoomLocalExcludesSender(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sinkA := &fakeSink{}
	sinkB := &fakeSink{}
	hub.Connect("user-a", "sess-a", sinkA, time.Now())
	hub.Connect("user-b", "sess-b", sinkB, time.Now())
	hub.JoinRoom("user-a", "room-1")
	hub.JoinRoom("user-b", "room-1")

	hub.BroadcastToRoomLocal("room-1", OutboundFrame{Type: OutMessage, Content: "hi"}, "user-a")

	assert.NotContains(t, sinkA.Types(), OutMessage, "sender is excluded from local delivery")
	assert.Contains(t, sinkB.Types(), OutMessage)
}

func TestHub_BroadcastToRoomWithNoBusFallsBackToLocal(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sink := &fakeSink{}
	hub.Connect("user-a", "sess-a", sink, time.Now())
	hub.JoinRoom("user-a", "room-1")

	hub.BroadcastToRoom(context.Background(), "room-1", OutboundFrame{Type: OutMessage}, "someone-else")

	assert.Contains(t, sink.Types(), OutMessage, "nil bus degrades to local delivery")
}

func TestHub_NotifyUserWithNoBusFallsBackToLocal(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sink := &fakeSink{}
	hub.Connect("user-a", "sess-a", sink, time.Now())

	hub.NotifyUser(context.Background(), "user-a", OutboundFrame{Type: OutUnreadUpdated, UnreadCount: 3}, "sender")

	assert.Contains(t, sink.Types(), OutUnreadUpdated)
}

func TestHub_DisconnectLastSessionClearsRoomPresence(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sinkA := &fakeSink{}
	sinkB := &fakeSink{}
	hub.Connect("user-a", "sess-a", sinkA, time.Now())
	hub.Connect("user-b", "sess-b", sinkB, time.Now())
	hub.JoinRoom("user-a", "room-1")
	hub.JoinRoom("user-b", "room-1")

	hub.Disconnect(context.Background(), "user-a", "sess-a")

	assert.Contains(t, sinkB.Types(), OutUserOffline)
}

func TestHub_TypingExpiresAfterTTL(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()

	sinkA := &fakeSink{}
	sinkB := &fakeSink{}
	hub.Connect("user-a", "sess-a", sinkA, time.Now())
	hub.Connect("user-b", "sess-b", sinkB, time.Now())
	hub.JoinRoom("user-a", "room-1")
	hub.JoinRoom("user-b", "room-1")

	hub.UserTyping("user-a", "room-1", time.Now().Add(-typingTTL-time.Second))

	require.Eventually(t, func() bool {
		return contains(sinkB.Types(), OutTyping)
	}, 2*housekeepInterval, 50*time.Millisecond)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
