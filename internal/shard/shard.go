// Package shard implements the shard worker (C6) and the router/dispatcher
// logic (C7): a single goroutine per shard owns a disjoint set of
// connections and a local subscription index, cooperating with every other
// shard purely through typed instruction channels. Grounded on the teacher's
// src/sharded/shard.go event-loop shape (register/unregister/broadcast over
// channels), generalized to the NATS-protocol domain, and NOT on the
// teacher's internal/multi/shard.go, whose shared-mutex BroadcastBus
// contradicts spec §5's "no shared mutable state across shards" (see
// DESIGN.md).
package shard

import (
	"math/rand"
	"time"

	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/logging"
	"github.com/adred-codev/shardmq/internal/subindex"
	"github.com/rs/zerolog"
)

// cycleInterval is the shard's per-cycle sleep budget, spec §4.5 ("~500 µs
// sleep between cycles").
const cycleInterval = 500 * time.Microsecond

// inboxCapacity bounds each shard's instruction inbox; a full inbox causes a
// non-blocking send to drop the instruction, logged as Backpressure per
// spec §7 ("shard-to-shard channel send fails... log at warning, drop").
const inboxCapacity = 4096

// Shard owns a disjoint set of connections and their subscriptions. Not safe
// for concurrent use outside its own Run goroutine.
type Shard struct {
	id     int
	logger zerolog.Logger
	index  *subindex.Index

	connections map[uint64]broker.Conn
	newConns    chan broker.Conn
	inbox       chan broker.Instruction
	peers       []chan broker.Instruction // peers[i] is shard i's inbox, including this shard's own

	rng *rand.Rand

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates shard id's worker with its own inbox. Wire every shard's peer
// slice identically (one entry per shard, in shard-ID order) before calling
// Run, so every shard can address every other shard (and itself).
func New(id int, logger zerolog.Logger) *Shard {
	return &Shard{
		id:          id,
		logger:      logger.With().Int("shard_id", id).Logger(),
		index:       subindex.New(),
		connections: make(map[uint64]broker.Conn),
		newConns:    make(chan broker.Conn, inboxCapacity),
		inbox:       make(chan broker.Instruction, inboxCapacity),
		rng:         rand.New(rand.NewSource(int64(id) + time.Now().UnixNano())),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Inbox returns this shard's instruction channel, used by SetPeers to wire
// the fleet together and by the acceptor/other shards to address it directly.
func (s *Shard) Inbox() chan broker.Instruction { return s.inbox }

// SetPeers installs the full fleet's inbox channels (including this shard's
// own, at index s.id), per spec §4.5's "Sender<RouterInstruction> handles to
// every shard (including itself)".
func (s *Shard) SetPeers(peers []chan broker.Instruction) { s.peers = peers }

// AddConnection hands off a newly accepted connection to this shard. Called
// by the acceptor; never blocks (drops with a log warning if the shard's
// intake queue is saturated, treated as Backpressure).
func (s *Shard) AddConnection(conn broker.Conn) {
	select {
	case s.newConns <- conn:
	default:
		s.logger.Warn().Uint64("conn_id", conn.ID()).Msg("shard intake queue full, dropping connection")
	}
}

// Run executes the shard's cycle loop until Stop is called.
func (s *Shard) Run() {
	defer close(s.doneCh)
	defer logging.RecoverPanic(s.logger, "shard.Run")

	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cycle()
		}
	}
}

// Stop signals the shard to exit after its current cycle and waits for it.
func (s *Shard) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Shard) cycle() {
	s.drainNewConnections()
	s.drainInbox()
	s.tickConnections()
	s.reapClosed()
}

func (s *Shard) drainNewConnections() {
	for {
		select {
		case conn := <-s.newConns:
			s.connections[conn.ID()] = conn
		default:
			return
		}
	}
}

func (s *Shard) drainInbox() {
	for {
		select {
		case instr := <-s.inbox:
			s.apply(instr)
		default:
			return
		}
	}
}

func (s *Shard) tickConnections() {
	for id, conn := range s.connections {
		ctx := broker.NewTickContext(s.id, id)
		conn.Tick(ctx)
		for _, instr := range ctx.Drain() {
			s.route(instr)
		}
	}
}

func (s *Shard) reapClosed() {
	for id, conn := range s.connections {
		if conn.Connected() {
			continue
		}
		for _, sub := range s.index.SubsOf(id) {
			s.route(broker.Unsubscribe(sub.ConnID, sub.SubID))
		}
		delete(s.connections, id)
	}
}

// apply mutates this shard's local state in response to an instruction
// drained from its inbox, per spec §4.5 step 2.
func (s *Shard) apply(instr broker.Instruction) {
	switch instr.Kind {
	case broker.InstrSubscribe:
		s.index.Subscribe(instr.Sub)
	case broker.InstrUnsubscribe:
		s.index.Unsubscribe(instr.Sub.ConnID, instr.Sub.SubID)
	case broker.InstrPublish:
		for _, sub := range s.index.SubsMatching(instr.Pub.Subject) {
			if sub.ShardID != s.id {
				continue
			}
			s.deliver(sub, instr.Pub)
		}
	case broker.InstrPublishExact:
		if instr.Dest.ShardID != s.id {
			return
		}
		s.deliver(instr.Dest, instr.Pub)
	}
}

func (s *Shard) deliver(sub broker.Subscription, pub broker.Publication) {
	conn, ok := s.connections[sub.ConnID]
	if !ok {
		return
	}
	conn.WriteMsg(broker.Delivery{
		Subject: pub.Subject,
		Sid:     sub.SubID,
		ReplyTo: pub.ReplyTo,
		Headers: pub.Headers,
		Payload: pub.Payload,
	})
}

// route translates one connection-tick intent into RouterInstructions and
// sends them to the appropriate peer shards, per spec §4.5 step 4.
func (s *Shard) route(instr broker.Instruction) {
	switch instr.Kind {
	case broker.InstrSubscribe, broker.InstrUnsubscribe:
		s.broadcast(instr)

	case broker.InstrPublish:
		shards := make(map[int]struct{})
		for _, sub := range s.index.SubsMatching(instr.Pub.Subject) {
			shards[sub.ShardID] = struct{}{}
		}
		for shardID := range shards {
			s.send(shardID, broker.Publish(instr.Pub))
		}

		for _, members := range s.index.GroupsMatching(instr.Pub.Subject) {
			if len(members) == 0 {
				continue
			}
			chosen := members[s.rng.Intn(len(members))]
			s.send(chosen.ShardID, broker.PublishExact(chosen, instr.Pub))
		}

	case broker.InstrPublishExact:
		s.send(instr.Dest.ShardID, instr)
	}
}

// broadcast sends instr to every shard in the fleet, including this one.
func (s *Shard) broadcast(instr broker.Instruction) {
	for shardID := range s.peers {
		s.send(shardID, instr)
	}
}

func (s *Shard) send(shardID int, instr broker.Instruction) {
	if shardID < 0 || shardID >= len(s.peers) || s.peers[shardID] == nil {
		return
	}
	select {
	case s.peers[shardID] <- instr:
	default:
		s.logger.Warn().
			Int("dest_shard", shardID).
			Int("instruction_kind", int(instr.Kind)).
			Msg("peer shard inbox full, dropping instruction")
	}
}
