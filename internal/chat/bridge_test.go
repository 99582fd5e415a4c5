package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcluster/chat/internal/bus"
)

func TestBridge_HandleRoomDeliversToLocalMembersExceptSender(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()
	bridge := NewBridge(nil, hub)

	sinkA := &fakeSink{}
	sinkB := &fakeSink{}
	hub.Connect("user-a", "sess-a", sinkA, time.Now())
	hub.Connect("user-b", "sess-b", sinkB, time.Now())
	hub.JoinRoom("user-a", "room-1")
	hub.JoinRoom("user-b", "room-1")

	frame, err := json.Marshal(OutboundFrame{Type: OutMessage, RoomID: "room-1", Content: "hello"})
	require.NoError(t, err)

	bridge.handleRoom(bus.PubSubPayload{RoomID: "room-1", Payload: frame, SenderID: "user-a"})

	assert.NotContains(t, sinkA.Types(), OutMessage)
	assert.Contains(t, sinkB.Types(), OutMessage)
}

func TestBridge_HandleUserDeliversToTargetOnly(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()
	bridge := NewBridge(nil, hub)

	sinkA := &fakeSink{}
	sinkB := &fakeSink{}
	hub.Connect("user-a", "sess-a", sinkA, time.Now())
	hub.Connect("user-b", "sess-b", sinkB, time.Now())

	frame, err := json.Marshal(OutboundFrame{Type: OutUnreadUpdated, RoomID: "room-1", UnreadCount: 2})
	require.NoError(t, err)

	bridge.handleUser("user-b", bus.PubSubPayload{Payload: frame, SenderID: "user-a"})

	assert.Empty(t, sinkA.Types())
	assert.Contains(t, sinkB.Types(), OutUnreadUpdated)
}

func TestBridge_HandleRoomIgnoresUndecodablePayload(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()
	bridge := NewBridge(nil, hub)

	assert.NotPanics(t, func() {
		bridge.handleRoom(bus.PubSubPayload{RoomID: "room-1", Payload: []byte("not json")})
	})
}

func TestBridge_RunWiresSubscribePatterns(t *testing.T) {
	hub, stop := newRunningHub(t)
	defer stop()
	bridge := NewBridge(nil, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var wg sync.WaitGroup

	assert.NotPanics(t, func() {
		bridge.Run(ctx, &wg)
	})
}
