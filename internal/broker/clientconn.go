package broker

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/adred-codev/shardmq/internal/protocol"
	"github.com/adred-codev/shardmq/internal/subject"
	"github.com/rs/zerolog"
)

// connState is the per-connection lifecycle, SPEC_FULL.md §4.3:
// Fresh -> Authenticated -> Closed.
type connState int

const (
	stateFresh connState = iota
	stateAuthenticated
	stateClosed
)

// MaxPayload is advertised in INFO and enforced by the parser (protocol.MaxPayload).
const MaxPayload = protocol.MaxPayload

const pingInterval = 20 * time.Second

// readTimeout bounds each non-blocking-style read attempt inside Tick; a
// socket with nothing to say returns promptly so the shard's cycle budget
// (~500µs per SPEC_FULL.md §4.5) isn't eaten by one idle connection.
const readTimeout = 200 * time.Microsecond

// Authenticator checks a (user, pass) pair against the configured accounts.
// A nil Authenticator means "no accounts configured" (spec §4.3: auth_required=false).
type Authenticator func(user, pass string) bool

// ClientConn is the socket-backed C4 connection state machine: it owns the
// handshake, PUB/SUB/UNSUB bookkeeping, verbose +OK/-ERR replies, and PING
// liveness. Grounded on original_source's Conexion trait plus the teacher's
// per-connection read/write idiom (buffered writer, panic-safe goroutine-free
// tick loop driven entirely by the owning shard).
type ClientConn struct {
	id    uint64
	sock  net.Conn
	wbuf  *bufio.Writer
	parser *protocol.Parser
	logger zerolog.Logger

	state       connState
	verbose     bool
	authRequired bool
	authenticate Authenticator

	lastPingSent time.Time
	readBuf      []byte
}

// NewClientConn wraps an accepted socket. It writes the initial INFO line
// immediately, per spec §4.3 ("on construction... writes an INFO line").
func NewClientConn(sock net.Conn, authRequired bool, authenticate Authenticator, logger zerolog.Logger) *ClientConn {
	c := &ClientConn{
		sock:         sock,
		wbuf:         bufio.NewWriter(sock),
		parser:       protocol.NewParser(),
		logger:       logger,
		verbose:      true,
		authRequired: authRequired,
		authenticate: authenticate,
		lastPingSent: time.Now(),
		readBuf:      make([]byte, 64*1024),
	}
	c.writeInfo()
	return c
}

func (c *ClientConn) ID() uint64     { return c.id }
func (c *ClientConn) SetID(id uint64) { c.id = id }
func (c *ClientConn) Connected() bool { return c.state != stateClosed }

func (c *ClientConn) writeInfo() {
	body, _ := json.Marshal(struct {
		AuthRequired bool `json:"auth_required"`
		MaxPayload   int  `json:"max_payload"`
	}{AuthRequired: c.authRequired, MaxPayload: MaxPayload})
	c.wbuf.Write(protocol.EncodeInfo(body))
	c.wbuf.Flush()
}

// Tick performs one non-blocking-ish read, processes every frame the parser
// now has buffered, sends a PING if the interval has elapsed, and flushes
// any writes produced this cycle. Intents are recorded into ctx.
func (c *ClientConn) Tick(ctx *TickContext) {
	if c.state == stateClosed {
		return
	}

	c.sock.SetReadDeadline(time.Now().Add(readTimeout))
	n, err := c.sock.Read(c.readBuf)
	if n > 0 {
		c.parser.Feed(c.readBuf[:n])
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			// no data this cycle, not an error
		} else {
			c.close()
			return
		}
	}
	if n == 0 && err == nil {
		// a zero-byte, non-timeout read on a stream socket means EOF
		c.close()
		return
	}

	for {
		f, ok := c.parser.Next()
		if !ok {
			break
		}
		c.handleFrame(ctx, f)
		if c.state == stateClosed {
			break
		}
	}

	if c.state != stateClosed && time.Since(c.lastPingSent) >= pingInterval {
		c.wbuf.Write(protocol.EncodePing())
		c.lastPingSent = time.Now()
	}

	c.wbuf.Flush()
}

func (c *ClientConn) handleFrame(ctx *TickContext, f protocol.Frame) {
	if c.state == stateFresh {
		if f.Verb != protocol.VerbConnect {
			c.writeErr("expected CONNECT")
			c.close()
			return
		}
		c.handleConnect(f)
		return
	}

	switch f.Verb {
	case protocol.VerbPub:
		ctx.Publish(Publication{Subject: f.Subject, ReplyTo: f.ReplyTo, Payload: f.Payload})
		c.writeOK()
	case protocol.VerbHPub:
		ctx.Publish(Publication{Subject: f.Subject, ReplyTo: f.ReplyTo, Headers: f.Headers, Payload: f.Payload})
		c.writeOK()
	case protocol.VerbSub:
		topic, err := subject.New(f.Subject)
		if err != nil {
			c.writeErr("invalid subject")
			return
		}
		ctx.Subscribe(topic, f.Sid, f.Queue)
		c.writeOK()
	case protocol.VerbUnsub:
		// max_msgs is parsed for wire fidelity but folded into an immediate
		// unsubscribe, per DESIGN.md Open Question decision #1.
		ctx.Unsubscribe(f.Sid)
		c.writeOK()
	case protocol.VerbPing:
		c.wbuf.Write(protocol.EncodePong())
	case protocol.VerbPong:
		// ignored
	case protocol.VerbConnect:
		c.writeErr("already connected")
	case protocol.VerbErr:
		c.writeErr(f.ErrReason)
	}
}

func (c *ClientConn) handleConnect(f protocol.Frame) {
	var body struct {
		User    string `json:"user"`
		Pass    string `json:"pass"`
		Verbose *bool  `json:"verbose"`
	}
	if err := json.Unmarshal(f.JSON, &body); err != nil {
		c.writeErr("invalid CONNECT json")
		c.close()
		return
	}
	if body.Verbose != nil {
		c.verbose = *body.Verbose
	}

	if c.authRequired {
		if c.authenticate == nil || !c.authenticate(body.User, body.Pass) {
			c.writeErr("authorization violation")
			c.close()
			return
		}
	}

	c.state = stateAuthenticated
	c.writeOK()
}

func (c *ClientConn) writeOK() {
	if c.verbose {
		c.wbuf.Write(protocol.EncodeOK())
	}
}

func (c *ClientConn) writeErr(reason string) {
	if c.verbose {
		c.wbuf.Write(protocol.EncodeErr(reason))
	}
}

func (c *ClientConn) close() {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	c.wbuf.Flush()
	c.sock.Close()
}

// WriteMsg renders and writes a MSG or HMSG frame for a matched delivery.
func (c *ClientConn) WriteMsg(d Delivery) {
	if c.state == stateClosed {
		return
	}
	var frame []byte
	if d.Headers != nil {
		frame = protocol.EncodeHMsg(d.Subject, d.Sid, d.ReplyTo, d.Headers, d.Payload)
	} else {
		frame = protocol.EncodeMsg(d.Subject, d.Sid, d.ReplyTo, d.Payload)
	}
	if _, err := c.wbuf.Write(frame); err != nil {
		c.logger.Warn().Err(err).Uint64("conn_id", c.id).Msg("write failed, closing connection")
		c.close()
		return
	}
	c.wbuf.Flush()
}
