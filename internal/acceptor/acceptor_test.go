package acceptor

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/rs/zerolog"
)

type fakeShard struct {
	received []broker.Conn
}

func (f *fakeShard) AddConnection(conn broker.Conn) {
	f.received = append(f.received, conn)
}

func TestRoundRobinAssignment(t *testing.T) {
	s0, s1 := &fakeShard{}, &fakeShard{}
	a := New(Config{Logger: zerolog.Nop()}, []ShardTarget{s0, s1})

	for i := 0; i < 4; i++ {
		server, client := net.Pipe()
		defer client.Close()
		go io.Copy(io.Discard, client) // net.Pipe is unbuffered; consume the INFO line admit writes
		a.admit(server)
	}

	if len(s0.received) != 2 || len(s1.received) != 2 {
		t.Fatalf("expected 2/2 round-robin split, got %d/%d", len(s0.received), len(s1.received))
	}
}

func TestConnectionIDsAreMonotonicStartingAtTwo(t *testing.T) {
	s0 := &fakeShard{}
	a := New(Config{Logger: zerolog.Nop()}, []ShardTarget{s0})

	server1, client1 := net.Pipe()
	defer client1.Close()
	go io.Copy(io.Discard, client1) // net.Pipe is unbuffered; consume the INFO line admit writes
	a.admit(server1)

	server2, client2 := net.Pipe()
	defer client2.Close()
	go io.Copy(io.Discard, client2)
	a.admit(server2)

	if len(s0.received) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(s0.received))
	}
	if s0.received[0].ID() != 2 || s0.received[1].ID() != 3 {
		t.Fatalf("expected ids 2,3 (1 reserved for JetStream admin), got %d,%d",
			s0.received[0].ID(), s0.received[1].ID())
	}
}

func TestCloseStopsAcceptLoop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.Close()

	a := New(Config{Address: ln.Addr().String(), Logger: zerolog.Nop()}, nil)
	done := make(chan error, 1)
	go func() { done <- a.Serve() }()

	time.Sleep(10 * time.Millisecond)
	a.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
