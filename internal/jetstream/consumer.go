package jetstream

import (
	"fmt"
	"time"

	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/nats-io/nuid"
)

// Consumer is the C10 virtual connection delivering one stream's buffered
// publications at-least-once, single-inflight: it never pops another
// message off its Stream until the previously delivered one is acked (or
// until a fresh MSG.NEXT re-sends the same pending message under a new ack
// token). Grounded on
// original_source/messaging-server/src/jetstream/consumer.rs.
//
// stream is accessed directly (no channel) because this repository pins
// every JetStream virtual connection for one stream onto the same shard as
// that stream (see DESIGN.md), so Stream.Pop is always called from the same
// single goroutine that owns it.
type Consumer struct {
	id            uint64
	config     ConsumerConfig
	streamName string
	stream     *Stream
	toStream   chan<- CatalogUpdate
	ready      bool
	deleted    bool

	pending    *broker.Publication
	ackSubject string

	out []broker.Publication
}

// NewConsumer constructs a consumer bound to stream, ready to be handed to a Spawner.
func NewConsumer(config ConsumerConfig, streamName string, stream *Stream, toStream chan<- CatalogUpdate) *Consumer {
	return &Consumer{
		config:     config,
		streamName: streamName,
		stream:     stream,
		toStream:   toStream,
	}
}

func (c *Consumer) ID() uint64      { return c.id }
func (c *Consumer) SetID(id uint64) { c.id = id }
func (c *Consumer) Connected() bool { return !c.deleted }

func (c *Consumer) Tick(ctx *broker.TickContext) {
	if !c.ready {
		mustSub(ctx, fmt.Sprintf("$JS.API.CONSUMER.INFO.%s.%s", c.streamName, c.config.DurableName), "info")
		mustSub(ctx, fmt.Sprintf("$JS.API.CONSUMER.DELETE.%s.%s", c.streamName, c.config.DurableName), "eliminar")
		mustSub(ctx, fmt.Sprintf("$JS.API.CONSUMER.MSG.NEXT.%s.%s", c.streamName, c.config.DurableName), "mensaje_siguiente")
		mustSub(ctx, fmt.Sprintf("$JS.ACK.%s.%s.*", c.streamName, c.config.DurableName), "ack")

		c.notifyStream()
		c.ready = true
	}

	for _, pub := range c.out {
		ctx.Publish(pub)
	}
	c.out = c.out[:0]
}

func (c *Consumer) notifyStream() {
	info := ConsumerInfo{
		Type:    "io.nats.jetstream.api.v1.consumer_info_response",
		Config:  c.config,
		Created: time.Now().UTC().Format(time.RFC3339),
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case c.toStream <- CatalogUpdate{Kind: UpdateConsumerInfo, ConsumerName: c.config.DurableName, Consumer: info}:
	default:
	}
}

func (c *Consumer) WriteMsg(d broker.Delivery) {
	switch d.Sid {
	case "info":
		c.replyInfo(d)
	case "eliminar":
		c.delete()
	case "mensaje_siguiente":
		c.nextMessage(d)
	case "ack":
		c.ack(d)
	}
}

func (c *Consumer) replyInfo(d broker.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	info := ConsumerInfo{
		Type:    "io.nats.jetstream.api.v1.consumer_info_response",
		Config:  c.config,
		Created: time.Now().UTC().Format(time.RFC3339),
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
	c.out = append(c.out, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(info)})
}

func (c *Consumer) delete() {
	c.deleted = true
	select {
	case c.toStream <- CatalogUpdate{Kind: UpdateConsumerDeleted, ConsumerName: c.config.DurableName}:
	default:
	}
}

// nextMessage implements single-inflight delivery: if nothing is pending it
// pops the next buffered publication off the stream; either way it re-sends
// the pending message under a fresh ack token, per spec §4.8's "MSG.NEXT
// while an unacknowledged message is pending re-delivers the same pending
// message".
func (c *Consumer) nextMessage(d broker.Delivery) {
	if c.pending == nil {
		if pub, ok := c.stream.Pop(); ok {
			p := pub
			c.pending = &p
		}
	}
	if c.pending == nil || d.ReplyTo == "" {
		return
	}

	c.ackSubject = fmt.Sprintf("$JS.ACK.%s.%s.%s", c.streamName, c.config.DurableName, nuid.Next())
	c.out = append(c.out, broker.Publication{
		Subject: d.ReplyTo,
		ReplyTo: c.ackSubject,
		Headers: c.pending.Headers,
		Payload: c.pending.Payload,
	})
}

// ack clears the pending slot only if the incoming publication's subject is
// the ack token most recently handed out, matching original_source's check.
func (c *Consumer) ack(d broker.Delivery) {
	if c.pending != nil && d.Subject == c.ackSubject {
		c.pending = nil
		c.ackSubject = ""
	}
}
