package broker

// InstructionKind discriminates the Instruction sum type, grounded on
// original_source/messaging-server/src/hilo/instruccion.rs's Instruccion enum
// (Suscribir / Desuscribir / Publicar / PublicarExacto).
type InstructionKind int

const (
	InstrSubscribe InstructionKind = iota
	InstrUnsubscribe
	InstrPublish
	InstrPublishExact
)

// Instruction is one outbound effect a connection's tick produced, or one
// inbound effect a shard's router inbox delivered. Subscribe/Unsubscribe
// mutate a shard's local subscription index and, once observed by the owning
// shard, are broadcast to every peer shard so cross-shard summaries stay
// current (SPEC_FULL.md §4.5). Publish fans out to every shard with a
// matching subscriber; PublishExact targets one specific subscription,
// used for queue-group delivery resolved by a peer shard.
type Instruction struct {
	Kind InstructionKind

	Sub  Subscription // Subscribe / Unsubscribe (ConnID+SubID identify the target for Unsubscribe)
	Pub  Publication  // Publish / PublishExact
	Dest Subscription // PublishExact: which specific subscription to deliver to
}

// Subscribe builds a Subscribe instruction.
func Subscribe(sub Subscription) Instruction {
	return Instruction{Kind: InstrSubscribe, Sub: sub}
}

// Unsubscribe builds an Unsubscribe instruction for (connID, subID).
func Unsubscribe(connID uint64, subID string) Instruction {
	return Instruction{Kind: InstrUnsubscribe, Sub: Subscription{ConnID: connID, SubID: subID}}
}

// Publish builds a fan-out Publish instruction.
func Publish(pub Publication) Instruction {
	return Instruction{Kind: InstrPublish, Pub: pub}
}

// PublishExact builds a targeted PublishExact instruction.
func PublishExact(dest Subscription, pub Publication) Instruction {
	return Instruction{Kind: InstrPublishExact, Dest: dest, Pub: pub}
}
