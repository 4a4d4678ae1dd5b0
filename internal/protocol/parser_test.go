package protocol

import (
	"bytes"
	"testing"
)

// TestParserRoundTrip feeds an encoded PUB/HPUB/SUB/UNSUB sequence in one
// chunk and expects to decode exactly that sequence back out.
func TestParserRoundTrip(t *testing.T) {
	var wire []byte
	wire = append(wire, EncodeSub("foo.bar", "", "1")...)
	wire = append(wire, EncodePub("foo.bar", "", []byte("hello"))...)
	wire = append(wire, EncodeHPub("foo.baz", "inbox.1", []byte("k:v\r\n"), []byte("payload"))...)
	wire = append(wire, EncodeUnsub("1", 0, false)...)

	p := NewParser()
	p.Feed(wire)

	var got []Frame
	for {
		f, ok := p.Next()
		if !ok {
			break
		}
		got = append(got, f)
	}

	if len(got) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(got))
	}
	if got[0].Verb != VerbSub || got[0].Subject != "foo.bar" || got[0].Sid != "1" {
		t.Errorf("frame 0 = %+v", got[0])
	}
	if got[1].Verb != VerbPub || string(got[1].Payload) != "hello" {
		t.Errorf("frame 1 = %+v", got[1])
	}
	if got[2].Verb != VerbHPub || !bytes.Equal(got[2].Headers, []byte("k:v\r\n")) || string(got[2].Payload) != "payload" {
		t.Errorf("frame 2 = %+v", got[2])
	}
	if got[3].Verb != VerbUnsub || got[3].Sid != "1" {
		t.Errorf("frame 3 = %+v", got[3])
	}
}

// TestPartialResumption splits the same byte stream at every possible offset
// and checks the decoded frame sequence is identical to feeding it whole.
func TestPartialResumption(t *testing.T) {
	var wire []byte
	wire = append(wire, EncodeSub("a.b", "grp", "7")...)
	wire = append(wire, EncodePub("a.b", "reply.1", []byte("0123456789"))...)
	wire = append(wire, EncodeHPub("a.c", "", []byte("h1\r\n"), []byte("xyz"))...)

	want := decodeAll(t, wire)

	for split := 0; split <= len(wire); split++ {
		p := NewParser()
		p.Feed(wire[:split])
		var got []Frame
		for {
			f, ok := p.Next()
			if !ok {
				break
			}
			got = append(got, f)
		}
		p.Feed(wire[split:])
		for {
			f, ok := p.Next()
			if !ok {
				break
			}
			got = append(got, f)
		}
		if len(got) != len(want) {
			t.Fatalf("split %d: got %d frames, want %d", split, len(got), len(want))
		}
		for i := range want {
			if got[i].Verb != want[i].Verb || got[i].Subject != want[i].Subject || string(got[i].Payload) != string(want[i].Payload) {
				t.Fatalf("split %d: frame %d = %+v, want %+v", split, i, got[i], want[i])
			}
		}
	}
}

func decodeAll(t *testing.T, wire []byte) []Frame {
	t.Helper()
	p := NewParser()
	p.Feed(wire)
	var out []Frame
	for {
		f, ok := p.Next()
		if !ok {
			break
		}
		out = append(out, f)
	}
	return out
}

func TestByteByByteFeed(t *testing.T) {
	wire := EncodePub("x.y", "", []byte("ab"))
	p := NewParser()
	var got []Frame
	for i := 0; i < len(wire); i++ {
		p.Feed(wire[i : i+1])
		for {
			f, ok := p.Next()
			if !ok {
				break
			}
			got = append(got, f)
		}
	}
	if len(got) != 1 || got[0].Verb != VerbPub || string(got[0].Payload) != "ab" {
		t.Fatalf("got %+v", got)
	}
}

func TestMalformedLineEmitsErrWithoutDesync(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("GARBAGE\r\nPING\r\n"))

	f, ok := p.Next()
	if !ok || f.Verb != VerbErr {
		t.Fatalf("expected Err frame, got ok=%v f=%+v", ok, f)
	}
	f, ok = p.Next()
	if !ok || f.Verb != VerbPing {
		t.Fatalf("expected PING to survive after error, got ok=%v f=%+v", ok, f)
	}
}

func TestBlankLinesSkippedSilently(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("\r\n\r\nPING\r\n"))
	f, ok := p.Next()
	if !ok || f.Verb != VerbPing {
		t.Fatalf("expected PING, got ok=%v f=%+v", ok, f)
	}
}

func TestPubOverMaxPayloadRejectedWithoutDesync(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("PUB foo " + "9999999" + "\r\nPING\r\n"))

	f, ok := p.Next()
	if !ok || f.Verb != VerbErr {
		t.Fatalf("expected Err frame for oversized PUB, got ok=%v f=%+v", ok, f)
	}
	f, ok = p.Next()
	if !ok || f.Verb != VerbPing {
		t.Fatalf("expected PING to survive after rejection, got ok=%v f=%+v", ok, f)
	}
}

func TestHpubOverMaxPayloadRejected(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("HPUB foo 20 9999999\r\nPING\r\n"))

	f, ok := p.Next()
	if !ok || f.Verb != VerbErr {
		t.Fatalf("expected Err frame for oversized HPUB, got ok=%v f=%+v", ok, f)
	}
	f, ok = p.Next()
	if !ok || f.Verb != VerbPing {
		t.Fatalf("expected PING to survive after rejection, got ok=%v f=%+v", ok, f)
	}
}
