package protocol

import (
	"fmt"
	"strings"
)

// EncodeMsg renders a server->client MSG frame onto the wire.
func EncodeMsg(subject, sid, replyTo string, payload []byte) []byte {
	var b strings.Builder
	if replyTo == "" {
		fmt.Fprintf(&b, "MSG %s %s %d\r\n", subject, sid, len(payload))
	} else {
		fmt.Fprintf(&b, "MSG %s %s %s %d\r\n", subject, sid, replyTo, len(payload))
	}
	b.Write(payload)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// EncodeHMsg renders a server->client HMSG frame, headers first.
func EncodeHMsg(subject, sid, replyTo string, headers, payload []byte) []byte {
	total := len(headers) + len(payload)
	var b strings.Builder
	if replyTo == "" {
		fmt.Fprintf(&b, "HMSG %s %s %d %d\r\n", subject, sid, len(headers), total)
	} else {
		fmt.Fprintf(&b, "HMSG %s %s %s %d %d\r\n", subject, sid, replyTo, len(headers), total)
	}
	b.Write(headers)
	b.WriteString("\r\n")
	b.Write(payload)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// EncodePub renders a client->server PUB frame.
func EncodePub(subject, replyTo string, payload []byte) []byte {
	var b strings.Builder
	if replyTo == "" {
		fmt.Fprintf(&b, "PUB %s %d\r\n", subject, len(payload))
	} else {
		fmt.Fprintf(&b, "PUB %s %s %d\r\n", subject, replyTo, len(payload))
	}
	b.Write(payload)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// EncodeHPub renders a client->server HPUB frame.
func EncodeHPub(subject, replyTo string, headers, payload []byte) []byte {
	total := len(headers) + len(payload)
	var b strings.Builder
	if replyTo == "" {
		fmt.Fprintf(&b, "HPUB %s %d %d\r\n", subject, len(headers), total)
	} else {
		fmt.Fprintf(&b, "HPUB %s %s %d %d\r\n", subject, replyTo, len(headers), total)
	}
	b.Write(headers)
	b.WriteString("\r\n")
	b.Write(payload)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// EncodeSub renders a SUB frame.
func EncodeSub(subject, queue, sid string) []byte {
	if queue == "" {
		return []byte(fmt.Sprintf("SUB %s %s\r\n", subject, sid))
	}
	return []byte(fmt.Sprintf("SUB %s %s %s\r\n", subject, queue, sid))
}

// EncodeUnsub renders an UNSUB frame.
func EncodeUnsub(sid string, maxMsgs int, hasMax bool) []byte {
	if !hasMax {
		return []byte(fmt.Sprintf("UNSUB %s\r\n", sid))
	}
	return []byte(fmt.Sprintf("UNSUB %s %d\r\n", sid, maxMsgs))
}

// EncodeConnect renders a CONNECT frame from a raw JSON body.
func EncodeConnect(json []byte) []byte {
	return append(append([]byte("CONNECT "), json...), "\r\n"...)
}

// EncodeInfo renders an INFO frame from a raw JSON body.
func EncodeInfo(json []byte) []byte {
	return append(append([]byte("INFO "), json...), "\r\n"...)
}

// EncodePing renders a PING frame.
func EncodePing() []byte { return []byte("PING\r\n") }

// EncodePong renders a PONG frame.
func EncodePong() []byte { return []byte("PONG\r\n") }

// EncodeOK renders a +OK frame.
func EncodeOK() []byte { return []byte("+OK\r\n") }

// EncodeErr renders a -ERR frame with the given reason.
func EncodeErr(reason string) []byte {
	return []byte(fmt.Sprintf("-ERR %s\r\n", reason))
}
