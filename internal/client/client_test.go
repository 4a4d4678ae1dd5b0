package client_test

import (
	"net"
	"testing"
	"time"

	"github.com/adred-codev/shardmq/internal/acceptor"
	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/client"
	"github.com/adred-codev/shardmq/internal/shard"
	"github.com/rs/zerolog"
)

func startServer(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()

	shards := []*shard.Shard{shard.New(0, logger), shard.New(1, logger)}
	peers := make([]chan broker.Instruction, len(shards))
	for i, sh := range shards {
		peers[i] = sh.Inbox()
	}
	for _, sh := range shards {
		sh.SetPeers(peers)
		go sh.Run()
	}
	t.Cleanup(func() {
		for _, sh := range shards {
			sh.Stop()
		}
	})

	targets := make([]acceptor.ShardTarget, len(shards))
	for i, sh := range shards {
		targets[i] = sh
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	acc := acceptor.New(acceptor.Config{Address: addr, Logger: logger}, targets)
	go acc.Serve()
	t.Cleanup(acc.Close)

	time.Sleep(20 * time.Millisecond) // let the listener bind
	return addr
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	addr := startServer(t)

	sub, err := client.Connect(addr, "", "")
	if err != nil {
		t.Fatalf("subscriber Connect: %v", err)
	}
	defer sub.Close()

	s := sub.Subscribe("greetings.hello", "")

	pub, err := client.Connect(addr, "", "")
	if err != nil {
		t.Fatalf("publisher Connect: %v", err)
	}
	defer pub.Close()

	time.Sleep(10 * time.Millisecond) // let SUB propagate across shards

	pub.Publish("greetings.hello", []byte("hi"))

	select {
	case msg := <-s.Messages():
		if string(msg.Payload) != "hi" {
			t.Fatalf("expected payload 'hi', got %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered message")
	}
}

func TestRequestReply(t *testing.T) {
	addr := startServer(t)

	responder, err := client.Connect(addr, "", "")
	if err != nil {
		t.Fatalf("responder Connect: %v", err)
	}
	defer responder.Close()

	sub := responder.Subscribe("svc.echo", "")

	go func() {
		select {
		case msg := <-sub.Messages():
			responder.Publish(msg.ReplyTo, append([]byte("echo:"), msg.Payload...))
		case <-time.After(2 * time.Second):
		}
	}()

	requester, err := client.Connect(addr, "", "")
	if err != nil {
		t.Fatalf("requester Connect: %v", err)
	}
	defer requester.Close()

	time.Sleep(10 * time.Millisecond)

	reply, err := requester.Request("svc.echo", []byte("ping"), 2*time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(reply.Payload) != "echo:ping" {
		t.Fatalf("expected 'echo:ping', got %q", reply.Payload)
	}
}
