package sio

import (
	"bytes"
	"testing"
)

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent("join", map[string]string{"room": "kitchen"})
	if err != nil {
		t.Fatal(err)
	}
	want := `42["join",{"room":"kitchen"}]`
	if string(frame) != want {
		t.Fatalf("got %q, want %q", frame, want)
	}

	frame, err = encodeEvent("time_request", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != `42["time_request"]` {
		t.Fatalf("argument-less event encoded as %q", frame)
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, ok, err := decodeEvent([]byte(`42["round_started",{"round":2}]`))
	if err != nil || !ok {
		t.Fatalf("decode failed: ok=%v err=%v", ok, err)
	}
	if ev.Name != "round_started" {
		t.Fatalf("got name %q", ev.Name)
	}
	if string(ev.Arg) != `{"round":2}` {
		t.Fatalf("got arg %q", ev.Arg)
	}
}

func TestDecodeEventWithAckID(t *testing.T) {
	ev, ok, err := decodeEvent([]byte(`4213["room_list",{"rooms":{}}]`))
	if err != nil || !ok {
		t.Fatalf("decode failed: ok=%v err=%v", ok, err)
	}
	if ev.Name != "room_list" {
		t.Fatalf("ack id not skipped, got name %q", ev.Name)
	}
}

func TestDecodeEventNonEventFrames(t *testing.T) {
	for _, frame := range []string{"40", "3", "6", `44"error"`} {
		if _, ok, err := decodeEvent([]byte(frame)); ok || err != nil {
			t.Fatalf("frame %q should decode to not-an-event, got ok=%v err=%v", frame, ok, err)
		}
	}
	if _, _, err := decodeEvent([]byte(`42{not json`)); err == nil {
		t.Fatal("broken event body should error")
	}
}

func TestDecodeEventNoArg(t *testing.T) {
	ev, ok, err := decodeEvent([]byte(`42["game_reset"]`))
	if err != nil || !ok {
		t.Fatalf("decode failed: ok=%v err=%v", ok, err)
	}
	if ev.Arg != nil {
		t.Fatalf("expected nil arg, got %q", ev.Arg)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	packets := [][]byte{
		[]byte("2"),
		[]byte(`42["new_order",{"id":"o1"}]`),
		[]byte(`42["join_error",{"message":"voilà"}]`), // rune-counted length
	}
	out, err := decodePayload(encodePayload(packets))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(packets) {
		t.Fatalf("expected %d packets, got %d", len(packets), len(out))
	}
	for i := range packets {
		if !bytes.Equal(out[i], packets[i]) {
			t.Fatalf("packet %d: got %q, want %q", i, out[i], packets[i])
		}
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	for _, body := range []string{"5", "abc:12", "10:short"} {
		if _, err := decodePayload([]byte(body)); err == nil {
			t.Fatalf("payload %q should be rejected", body)
		}
	}
}
