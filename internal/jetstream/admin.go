package jetstream

import (
	"encoding/json"
	"time"

	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/subject"
)

// Spawner hands a freshly constructed virtual connection to a shard, exactly
// as the acceptor hands off socket connections. Admin uses it to spawn
// Streams; Stream uses it to spawn Consumers. In this implementation every
// JetStream virtual connection is spawned onto the single designated shard
// the Admin itself was seeded on, so Stream queues never need cross-shard
// synchronization (see DESIGN.md: JetStream shard pinning).
type Spawner interface {
	AddConnection(conn broker.Conn)
}

type streamListResponse struct {
	Type    string       `json:"type"`
	Total   int          `json:"total"`
	Streams []StreamInfo `json:"streams"`
}

// Admin is the C10 virtual connection seeded as connection_id=1 before the
// acceptor opens its listeners. Grounded on
// original_source/messaging-server/src/jetstream/admin.rs.
type Admin struct {
	id      uint64
	ready   bool
	spawner Spawner
	ids     *broker.IDAllocator

	streams map[string]StreamInfo
	updates chan CatalogUpdate

	pending []broker.Publication
}

// NewAdmin builds the JetStream admin virtual connection. spawner is where
// newly created Streams are handed off. ids must be the same allocator given
// to the acceptor, so spawned Streams (and, transitively, their Consumers)
// never collide with socket connection_ids on the shard they share (see
// DESIGN.md: JetStream shard pinning).
func NewAdmin(spawner Spawner, ids *broker.IDAllocator) *Admin {
	return &Admin{
		spawner: spawner,
		ids:     ids,
		streams: make(map[string]StreamInfo),
		updates: newCatalogUpdateChan(),
	}
}

func (a *Admin) ID() uint64      { return a.id }
func (a *Admin) SetID(id uint64) { a.id = id }
func (a *Admin) Connected() bool { return true }

func (a *Admin) Tick(ctx *broker.TickContext) {
	if !a.ready {
		mustSub(ctx, "$JS.API.STREAM.CREATE.*", "stream.crear")
		mustSub(ctx, "$JS.API.STREAM.LIST", "stream.listar")
		mustSub(ctx, "$JS.API.STREAM.NAMES", "stream.nombres")
		a.ready = true
	}

	a.drainUpdates()

	for _, pub := range a.pending {
		ctx.Publish(pub)
	}
	a.pending = a.pending[:0]
}

func (a *Admin) drainUpdates() {
	for {
		select {
		case u := <-a.updates:
			switch u.Kind {
			case UpdateStreamInfo:
				a.streams[u.StreamName] = u.Stream
			case UpdateStreamDeleted:
				delete(a.streams, u.StreamName)
			}
		default:
			return
		}
	}
}

func (a *Admin) WriteMsg(d broker.Delivery) {
	switch d.Sid {
	case "stream.crear":
		a.createStream(d)
	case "stream.listar":
		a.listStreams(d)
	case "stream.nombres":
		a.streamNames(d)
	}
}

func (a *Admin) createStream(d broker.Delivery) {
	var cfg StreamConfig
	if err := json.Unmarshal(d.Payload, &cfg); err != nil {
		return
	}
	if !validJetStreamName(cfg.Name) {
		return
	}
	stream := NewStream(cfg, a.updates, a.spawner, a.ids)
	stream.SetID(a.ids.Next())
	a.spawner.AddConnection(stream)

	if d.ReplyTo != "" {
		info := StreamInfo{
			Type:    "io.nats.jetstream.api.v1.stream_create_response",
			Config:  cfg,
			Created: time.Now().UTC().Format(time.RFC3339),
			TS:      time.Now().UTC().Format(time.RFC3339),
		}
		a.pending = append(a.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(info)})
	}
}

func (a *Admin) listStreams(d broker.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	streams := make([]StreamInfo, 0, len(a.streams))
	for _, s := range a.streams {
		streams = append(streams, s)
	}
	resp := streamListResponse{
		Type:    "io.nats.jetstream.api.v1.stream_list_response",
		Total:   len(streams),
		Streams: streams,
	}
	a.pending = append(a.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(resp)})
}

func (a *Admin) streamNames(d broker.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	names := make([]string, 0, len(a.streams))
	for name := range a.streams {
		names = append(names, name)
	}
	resp := namesResponse{Type: "io.nats.jetstream.api.v1.stream_names_response", Names: names}
	a.pending = append(a.pending, broker.Publication{Subject: d.ReplyTo, Payload: mustJSON(resp)})
}

// mustSub subscribes ctx's owning connection to topic under sid; JetStream
// control subjects are always well-formed literals or single-wildcard
// patterns baked in by this package, so a parse failure would be a
// programming error, not user input.
func mustSub(ctx *broker.TickContext, topic, sid string) {
	top, err := subject.New(topic)
	if err != nil {
		panic("jetstream: invalid built-in control subject " + topic)
	}
	ctx.Subscribe(top, sid, "")
}

// validJetStreamName rejects stream/consumer names containing '.' or
// whitespace, per spec §4.8.
func validJetStreamName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == '.' || r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			return false
		}
	}
	return true
}
