package domain

import "time"

// InboundMessage is one raw message arriving from a channel.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Timestamp time.Time
}

// OutboundMessage is a reply on its way back to a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// Context is caller-supplied conversation state. The pipeline reads it and
// never writes it: there is no conversation persistence inside a run.
type Context struct {
	PreviousMessages []string
	PreviousSources  []string
}

// MessageBus moves messages between channels and the pipeline worker.
type MessageBus interface {
	Publish(msg InboundMessage)
	Inbound() <-chan InboundMessage
	OnOutbound(channel string, handler func(OutboundMessage))
	Deliver(msg OutboundMessage)
}
