package broker

// TickContext accumulates the instructions one connection's tick produces
// (subscribe/unsubscribe/publish intents) so the owning shard can drain them
// all at once after ticking every connection it owns. Grounded on
// original_source/messaging-server/src/conexion/tick_contexto.rs's
// TickContexto (suscribir/desuscribir/publicar accumulation + accessors).
type TickContext struct {
	ShardID     int
	ConnID      uint64
	instructions []Instruction
}

// NewTickContext returns a context scoped to one connection's tick.
func NewTickContext(shardID int, connID uint64) *TickContext {
	return &TickContext{ShardID: shardID, ConnID: connID}
}

// Subscribe records a Subscribe intent; the subscription's ShardID/ConnID are
// filled in from the context so callers only need to supply topic/sid/queue.
func (c *TickContext) Subscribe(topic Topic, sid, queue string) {
	c.instructions = append(c.instructions, Subscribe(Subscription{
		ShardID: c.ShardID,
		ConnID:  c.ConnID,
		SubID:   sid,
		Topic:   topic,
		Queue:   queue,
	}))
}

// Unsubscribe records an Unsubscribe intent for this connection's sid.
func (c *TickContext) Unsubscribe(sid string) {
	c.instructions = append(c.instructions, Unsubscribe(c.ConnID, sid))
}

// Publish records a Publish intent to be fanned out by the router.
func (c *TickContext) Publish(pub Publication) {
	c.instructions = append(c.instructions, Publish(pub))
}

// Drain returns and clears the accumulated instructions.
func (c *TickContext) Drain() []Instruction {
	out := c.instructions
	c.instructions = nil
	return out
}
