// Package broker defines the data model and message-passing types shared by
// every shard-owned component: subscriptions, publications, the per-tick
// instruction log, and the polymorphic Conn capability set that both client
// sockets and JetStream virtual connections implement.
//
// Grounded on original_source/messaging-server/src/{conexion,publicacion,hilo}
// (the Conexion trait, TickContexto, Instruccion, and Publicacion types).
package broker

import "github.com/adred-codev/shardmq/internal/subject"

// Topic aliases subject.Topic so broker-level code doesn't need a second import.
type Topic = subject.Topic

// Publication is an immutable, cloneable message in flight: a subject, an
// optional reply-to subject, optional headers, and an opaque payload.
type Publication struct {
	Subject string
	ReplyTo string
	Headers []byte
	Payload []byte
}

// Clone returns a value copy suitable for crossing a shard boundary; byte
// slices are copied so concurrent writers on different shards never alias.
func (p Publication) Clone() Publication {
	out := p
	if p.Headers != nil {
		out.Headers = append([]byte(nil), p.Headers...)
	}
	if p.Payload != nil {
		out.Payload = append([]byte(nil), p.Payload...)
	}
	return out
}

// Subscription identifies one subscriber's interest in a topic pattern.
// Identity is the pair (ConnID, SubID); a subscription is bound for its
// entire lifetime to the shard that owns its connection.
type Subscription struct {
	ShardID  int
	ConnID   uint64
	SubID    string
	Topic    subject.Topic
	Queue    string // empty means "no queue group"
}

// HasQueue reports whether this subscription belongs to a queue group.
func (s Subscription) HasQueue() bool { return s.Queue != "" }

// Key returns the (ConnID, SubID) identity tuple used by the subscription
// index's per-connection view and for idempotent subscribe/unsubscribe.
func (s Subscription) Key() SubKey { return SubKey{ConnID: s.ConnID, SubID: s.SubID} }

// SubKey is a subscription's unique identity within a shard.
type SubKey struct {
	ConnID uint64
	SubID  string
}

// GroupKey identifies a queue group: (topic pattern text, group name).
type GroupKey struct {
	Topic string
	Queue string
}
