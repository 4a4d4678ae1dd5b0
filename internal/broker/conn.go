package broker

// Delivery is what a shard writes into a connection when a publication
// matches one of its subscriptions: the matched subject, the subscriber's
// sid, and the publication's reply-to/headers/payload.
type Delivery struct {
	Subject string
	Sid     string
	ReplyTo string
	Headers []byte
	Payload []byte
}

// Conn is the polymorphic capability set every shard-owned connection
// implements, grounded on original_source's Conexion trait
// (tick / escribir_publicacion_mensaje / esta_conectado). Concrete variants:
// *ClientConn (broker package), *jetstream.Admin, *jetstream.Stream,
// *jetstream.Consumer.
type Conn interface {
	// ID returns the connection's globally unique identifier.
	ID() uint64
	// SetID is called once at intake, by the acceptor or by whoever spawns
	// a virtual connection.
	SetID(id uint64)
	// Tick advances the connection's internal state machine by one cycle,
	// recording any Subscribe/Unsubscribe/Publish intents into ctx.
	Tick(ctx *TickContext)
	// WriteMsg delivers a matched publication to this connection.
	WriteMsg(d Delivery)
	// Connected reports whether the connection is still alive; it returns
	// false once the connection's lifetime has ended.
	Connected() bool
}
