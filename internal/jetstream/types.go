// Package jetstream implements the three JetStream virtual-connection
// variants (C10): Admin, Stream, Consumer. Each behaves like a socket-backed
// client from the shard's point of view (broker.Conn), but instead of
// parsing wire bytes it subscribes to $JS.API.*/$JS.ACK.* control subjects
// and reacts to delivered messages directly. Grounded on
// original_source/messaging-server/src/jetstream/{admin,stream,consumer}.rs.
package jetstream

import "encoding/json"

// StreamConfig is the create-stream request body, spec §6's JSON types
// mirroring io.nats.jetstream.api.v1.*.
type StreamConfig struct {
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	MaxMsgs  int64    `json:"max_msgs,omitempty"`
	MaxBytes int64    `json:"max_bytes,omitempty"`
	MaxAge   int64    `json:"max_age,omitempty"` // nanoseconds, advisory only (see DESIGN.md)
}

// StreamState mirrors io.nats.jetstream.api.v1.stream_state.
type StreamState struct {
	Messages uint64 `json:"messages"`
	Bytes    uint64 `json:"bytes"`
}

// StreamInfo mirrors io.nats.jetstream.api.v1.stream_info_response.
type StreamInfo struct {
	Type    string       `json:"type"`
	Config  StreamConfig `json:"config"`
	Created string       `json:"created"`
	State   StreamState  `json:"state"`
	TS      string       `json:"ts"`
}

// ConsumerConfig is the create-consumer request body.
type ConsumerConfig struct {
	DurableName   string `json:"durable_name"`
	FilterSubject string `json:"filter_subject,omitempty"`
}

// ConsumerInfo mirrors io.nats.jetstream.api.v1.consumer_info_response.
type ConsumerInfo struct {
	Type    string         `json:"type"`
	Config  ConsumerConfig `json:"config"`
	Created string         `json:"created"`
	TS      string         `json:"ts"`
}

type createConsumerRequest struct {
	Config ConsumerConfig `json:"config"`
}

type createConsumerResponse struct {
	Type   string         `json:"type"`
	Config ConsumerConfig `json:"config"`
	OK     bool           `json:"ok"`
}

type consumerListResponse struct {
	Type      string         `json:"type"`
	Limit     int            `json:"limit"`
	Total     int            `json:"total"`
	Consumers []ConsumerInfo `json:"consumers"`
}

type namesResponse struct {
	Type  string   `json:"type"`
	Names []string `json:"names"`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
