package jetstream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adred-codev/shardmq/internal/broker"
)

// Stream is the C10 virtual connection that buffers publications matching
// its configured subjects into an in-memory, bounded FIFO queue and spawns
// Consumer virtual connections on request. Grounded on
// original_source/messaging-server/src/jetstream/stream.rs; the queue itself
// and its direct Pop handoff to Consumer are this repository's own design
// (see DESIGN.md: JetStream shard pinning and queue ownership).
type Stream struct {
	id      uint64
	config  StreamConfig
	ready   bool
	deleted bool

	spawner Spawner
	toAdmin chan<- CatalogUpdate
	ids     *broker.IDAllocator

	fromConsumers chan CatalogUpdate
	consumers     map[string]ConsumerInfo

	queue      []broker.Publication
	queueBytes int64

	pending []broker.Publication
}

// NewStream constructs a stream ready to be handed to a Spawner. ids is the
// same allocator shared by the acceptor and Admin, used to assign unique
// connection_ids to Consumers this Stream spawns.
func NewStream(config StreamConfig, toAdmin chan<- CatalogUpdate, spawner Spawner, ids *broker.IDAllocator) *Stream {
	return &Stream{
		config:        config,
		spawner:       spawner,
		toAdmin:       toAdmin,
		ids:           ids,
		fromConsumers: newCatalogUpdateChan(),
		consumers:     make(map[string]ConsumerInfo),
	}
}

func (s *Stream) ID() uint64      { return s.id }
func (s *Stream) SetID(id uint64) { s.id = id }
func (s *Stream) Connected() bool { return !s.deleted }

func (s *Stream) Tick(ctx *broker.TickContext) {
	if !s.deleted {
		s.ensureSubscribed(ctx)
	}

	s.drainConsumerUpdates()

	for _, pub := range s.pending {
		ctx.Publish(pub)
	}
	s.pending = s.pending[:0]
}

func (s *Stream) ensureSubscribed(ctx *broker.TickContext) {
	if s.ready {
		return
	}
	name := s.config.Name
	mustSub(ctx, fmt.Sprintf("$JS.API.STREAM.INFO.%s", name), "info")
	mustSub(ctx, fmt.Sprintf("$JS.API.STREAM.DELETE.%s", name), "eliminar")
	mustSub(ctx, fmt.Sprintf("$JS.API.STREAM.UPDATE.%s", name), "actualizar")
	mustSub(ctx, fmt.Sprintf("$JS.API.STREAM.PURGE.%s", name), "purgar")
	mustSub(ctx, fmt.Sprintf("$JS.API.CONSUMER.CREATE.%s.*", name), "crear_consumer")
	mustSub(ctx, fmt.Sprintf("$JS.API.CONSUMER.LIST.%s", name), "listar_consumers")
	mustSub(ctx, fmt.Sprintf("$JS.API.CONSUMER.NAMES.%s", name), "nombres_consumer")

	for i, pattern := range s.config.Subjects {
		mustSub(ctx, pattern, fmt.Sprintf("data.%d", i))
	}

	s.notifyAdmin()
	s.ready = true
}

func (s *Stream) notifyAdmin() {
	info := StreamInfo{
		Type:    "io.nats.jetstream.api.v1.stream_info_response",
		Config:  s.config,
		Created: time.Now().UTC().Format(time.RFC3339),
		State:   s.state(),
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case s.toAdmin <- CatalogUpdate{Kind: UpdateStreamInfo, StreamName: s.config.Name, Stream: info}:
	default:
	}
}

func (s *Stream) state() StreamState {
	return StreamState{Messages: uint64(len(s.queue)), Bytes: uint64(s.queueBytes)}
}

func (s *Stream) drainConsumerUpdates() {
	for {
		select {
		case u := <-s.fromConsumers:
			switch u.Kind {
			case UpdateConsumerInfo:
				s.consumers[u.ConsumerName] = u.Consumer
			case UpdateConsumerDeleted:
				delete(s.consumers, u.ConsumerName)
			}
		default:
			return
		}
	}
}

func (s *Stream) WriteMsg(d broker.Delivery) {
	if strings.HasPrefix(d.Sid, "data.") {
		s.enqueue(broker.Publication{Subject: d.Subject, ReplyTo: d.ReplyTo, Headers: d.Headers, Payload: d.Payload})
		return
	}

	switch d.Sid {
	case "info":
		s.replyInfo(d)
	case "eliminar":
		s.delete()
	case "actualizar", "purgar":
		if d.Sid == "purgar" {
			s.queue = s.queue[:0]
			s.queueBytes = 0
		}
	case "crear_consumer":
		s.createConsumer(d)
	case "listar_consumers":
		s.listConsumers(d)
	case "nombres_consumer":
		s.consumerNames(d)
	}
}

// enqueue appends a publication, evicting the oldest message once max_msgs
// is exceeded. max_bytes/max_age are advisory only (DESIGN.md open-question
// decision): a max_bytes overrun is neither enforced nor logged, and max_age
// is not checked on read.
func (s *Stream) enqueue(pub broker.Publication) {
	s.queue = append(s.queue, pub)
	s.queueBytes += int64(len(pub.Payload))

	if s.config.MaxMsgs > 0 {
		for int64(len(s.queue)) > s.config.MaxMsgs {
			s.queueBytes -= int64(len(s.queue[0].Payload))
			s.queue = s.queue[1:]
		}
	}
}

// Pop removes and returns the oldest buffered publication. Only safe to call
// from a Consumer pinned to the same shard as this Stream.
func (s *Stream) Pop() (broker.Publication, bool) {
	if len(s.queue) == 0 {
		return broker.Publication{}, false
	}
	pub := s.queue[0]
	s.queue = s.queue[1:]
	s.queueBytes -= int64(len(pub.Payload))
	return pub, true
}

func (s *Stream) delete() {
	s.deleted = true
	select {
	case s.toAdmin <- CatalogUpdate{Kind: UpdateStreamDeleted, StreamName: s.config.Name}:
	default:
	}
}

func (s *Stream) replyInfo(d broker.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	info := StreamInfo{
		Type:    "io.nats.jetstream.api.v1.stream_info_response",
		Config:  s.config,
		Created: time.Now().UTC().Format(time.RFC3339),
		State:   s.state(),
		TS:      time.Now().UTC().Format(time.RFC3339),
	}
	s.pending = append(s.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(info)})
}

func (s *Stream) createConsumer(d broker.Delivery) {
	var req createConsumerRequest
	if err := json.Unmarshal(d.Payload, &req); err != nil {
		return
	}
	if !validJetStreamName(req.Config.DurableName) {
		return
	}
	consumer := NewConsumer(req.Config, s.config.Name, s, s.fromConsumers)
	consumer.SetID(s.ids.Next())
	s.spawner.AddConnection(consumer)

	if d.ReplyTo != "" {
		resp := createConsumerResponse{
			Type:   "io.nats.jetstream.api.v1.consumer_create_response",
			Config: req.Config,
			OK:     true,
		}
		s.pending = append(s.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(resp)})
	}
}

func (s *Stream) listConsumers(d broker.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	infos := make([]ConsumerInfo, 0, len(s.consumers))
	for _, c := range s.consumers {
		infos = append(infos, c)
	}
	resp := consumerListResponse{
		Type:      "io.nats.jetstream.api.v1.consumer_list_response",
		Limit:     len(infos) + 1,
		Total:     len(infos),
		Consumers: infos,
	}
	s.pending = append(s.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(resp)})
}

func (s *Stream) consumerNames(d broker.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	names := make([]string, 0, len(s.consumers))
	for name := range s.consumers {
		names = append(names, name)
	}
	resp := namesResponse{Type: "io.nats.jetstream.api.v1.consumer_names_response", Names: names}
	s.pending = append(s.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(resp)})
}
