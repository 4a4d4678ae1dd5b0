package jetstream

// CatalogUpdateKind tags a CatalogUpdate's payload, mirroring
// original_source's ActualizacionJS enum (Stream/StreamEliminado/Consumer/
// ConsumerEliminado).
type CatalogUpdateKind int

const (
	UpdateStreamInfo CatalogUpdateKind = iota
	UpdateStreamDeleted
	UpdateConsumerInfo
	UpdateConsumerDeleted
)

// CatalogUpdate flows from a Stream back to its owning Admin, or from a
// Consumer back to its owning Stream, so each level can keep an in-memory
// catalogue without touching the child's internal state directly.
type CatalogUpdate struct {
	Kind CatalogUpdateKind

	StreamName string
	Stream     StreamInfo

	ConsumerName string
	Consumer     ConsumerInfo
}

// catalogUpdateBuffer sizes the small buffered channel newCatalogUpdateChan
// returns; updates are drained
// non-blockingly once per tick, same cadence as the rest of a virtual
// connection's housekeeping.
const catalogUpdateBuffer = 256

func newCatalogUpdateChan() chan CatalogUpdate {
	return make(chan CatalogUpdate, catalogUpdateBuffer)
}
