// Package acceptor implements the TCP/TLS listeners and round-robin
// connection-to-shard assignment (C8). Grounded on the teacher's
// internal/shared/server.go accept loop shape and the round-robin target
// selection salvaged from the teacher's internal/multi/loadbalancer.go, with
// the WebSocket upgrade step replaced by a direct NATS-protocol handshake.
package acceptor

import (
	"crypto/tls"
	"net"
	"sync/atomic"

	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/limits"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ShardTarget is the subset of *shard.Shard the acceptor needs: a place to
// hand off a freshly accepted connection. Kept as an interface so this
// package never imports internal/shard, matching the teacher's pattern of
// depending on narrow local interfaces rather than concrete worker types.
type ShardTarget interface {
	AddConnection(conn broker.Conn)
}

// Config configures an Acceptor.
type Config struct {
	Address    string // plain TCP, e.g. "127.0.0.1:4222"
	TLSAddress string // optional, empty disables TLS listener
	TLSCert    string
	TLSKey     string

	AuthRequired bool
	Authenticate broker.Authenticator

	// IDs allocates connection_ids. Must be shared with the JetStream admin's
	// spawner (see jetstream.NewAdmin) so socket connections never collide
	// with JetStream virtual connections sharing the same shard's connection
	// map. If nil, New creates a private allocator starting at 2.
	IDs *broker.IDAllocator

	RateLimiter   *limits.ConnectionRateLimiter
	ResourceGuard *limits.ResourceGuard
	Logger        zerolog.Logger
}

// Acceptor binds the configured listeners and round-robins accepted sockets
// across the shard fleet. connection_id=1 is reserved for the JetStream
// admin virtual connection, seeded by the caller before Serve opens the
// listeners (spec §4.6), so the id counter here starts at 2.
type Acceptor struct {
	cfg    Config
	logger zerolog.Logger

	shards  []ShardTarget
	nextIdx uint64

	ids *broker.IDAllocator

	plainLn net.Listener
	tlsLn   net.Listener

	stop chan struct{}
}

// New builds an Acceptor targeting shards in round-robin order. Call Serve
// to start accepting; Close to stop.
func New(cfg Config, shards []ShardTarget) *Acceptor {
	ids := cfg.IDs
	if ids == nil {
		ids = broker.NewIDAllocator(2)
	}
	a := &Acceptor{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("subsystem", "acceptor").Logger(),
		shards: shards,
		ids:    ids,
		stop:   make(chan struct{}),
	}
	return a
}

// Serve binds the configured listeners and blocks accepting connections
// until Close is called. Returns the first bind error, if any.
func (a *Acceptor) Serve() error {
	ln, err := net.Listen("tcp", a.cfg.Address)
	if err != nil {
		return err
	}
	a.plainLn = ln
	a.logger.Info().Str("address", a.cfg.Address).Msg("plain listener bound")
	go a.acceptLoop(ln)

	if a.cfg.TLSAddress != "" && a.cfg.TLSCert != "" && a.cfg.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(a.cfg.TLSCert, a.cfg.TLSKey)
		if err != nil {
			return err
		}
		tlsLn, err := tls.Listen("tcp", a.cfg.TLSAddress, &tls.Config{Certificates: []tls.Certificate{cert}})
		if err != nil {
			return err
		}
		a.tlsLn = tlsLn
		a.logger.Info().Str("address", a.cfg.TLSAddress).Msg("tls listener bound")
		go a.acceptLoop(tlsLn)
	}

	<-a.stop
	return nil
}

// Close stops accepting new connections and closes the listeners.
func (a *Acceptor) Close() {
	close(a.stop)
	if a.plainLn != nil {
		a.plainLn.Close()
	}
	if a.tlsLn != nil {
		a.tlsLn.Close()
	}
}

func (a *Acceptor) acceptLoop(ln net.Listener) {
	for {
		sock, err := ln.Accept()
		if err != nil {
			select {
			case <-a.stop:
				return
			default:
				a.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		a.admit(sock)
	}
}

func (a *Acceptor) admit(sock net.Conn) {
	ip := remoteIP(sock)

	if a.cfg.RateLimiter != nil && !a.cfg.RateLimiter.Allow(ip) {
		sock.Close()
		return
	}

	if a.cfg.ResourceGuard != nil {
		if warn, cpuPercent := a.cfg.ResourceGuard.ShouldWarn(); warn {
			a.logger.Warn().Float64("cpu_percent", cpuPercent).Msg("accepting connection under CPU pressure")
		}
	}

	connID := a.ids.Next()
	traceID := uuid.New().String()

	conn := broker.NewClientConn(sock, a.cfg.AuthRequired, a.cfg.Authenticate, a.logger)
	conn.SetID(connID)

	a.logger.Info().
		Uint64("conn_id", connID).
		Str("trace_id", traceID).
		Str("remote_ip", ip).
		Msg("connection admitted")

	target := a.pickShard()
	target.AddConnection(conn)
}

// pickShard returns the next shard in round-robin order.
func (a *Acceptor) pickShard() ShardTarget {
	idx := atomic.AddUint64(&a.nextIdx, 1) - 1
	return a.shards[idx%uint64(len(a.shards))]
}

func remoteIP(sock net.Conn) string {
	host, _, err := net.SplitHostPort(sock.RemoteAddr().String())
	if err != nil {
		return sock.RemoteAddr().String()
	}
	return host
}
