package chat

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/bus"
	"github.com/chatcluster/chat/internal/logging"
)

// Bridge is the PubSub Bridge: it owns the dedicated subscribe connection
// and turns every message published by any instance (including this one)
// into a local delivery through the Hub. BroadcastToRoom and NotifyUser
// only ever write to Redis; this is the only path that reads back out, so
// every instance, the publisher included, delivers through the same code.
type Bridge struct {
	bus *bus.Service
	hub *Hub
}

// NewBridge wires a Bridge to its Hub. Run starts the subscription.
func NewBridge(busService *bus.Service, hub *Hub) *Bridge {
	return &Bridge{bus: busService, hub: hub}
}

// Run starts the bridge's subscription loop in the background and returns
// immediately; wg tracks the subscription goroutine's lifetime for
// graceful shutdown.
func (b *Bridge) Run(ctx context.Context, wg *sync.WaitGroup) {
	b.bus.SubscribePatterns(ctx, wg, b.handleRoom, b.handleUser)
}

func (b *Bridge) handleRoom(payload bus.PubSubPayload) {
	frame, ok := decodeFrame(payload)
	if !ok {
		return
	}
	b.hub.BroadcastToRoomLocal(payload.RoomID, frame, payload.SenderID)
}

func (b *Bridge) handleUser(targetUserID string, payload bus.PubSubPayload) {
	frame, ok := decodeFrame(payload)
	if !ok {
		return
	}
	b.hub.BroadcastToUsers([]string{targetUserID}, frame)
}

func decodeFrame(payload bus.PubSubPayload) (OutboundFrame, bool) {
	var frame OutboundFrame
	if err := json.Unmarshal(payload.Payload, &frame); err != nil {
		logging.Error(context.Background(), "bridge failed to decode frame payload", zap.Error(err))
		return OutboundFrame{}, false
	}
	return frame, true
}
