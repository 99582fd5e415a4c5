package chat

// Sink is how the Hub pushes frames back to a connection without knowing
// anything about sockets. Session implements it; tests use a fake.
type Sink interface {
	Send(frame OutboundFrame)
}
