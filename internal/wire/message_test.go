package wire

import (
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Message{
		{ChannelID: 1, Count: 0, Data: []byte("hello")},
		{ChannelID: 0xFFFFFFFF, Count: 255, Data: nil},
		{ChannelID: 7, Count: 200, Data: make([]byte, 1000)},
	}

	for _, want := range cases {
		frame := Encode(want)

		length, err := DecodeLength(frame[:LengthPrefixSize])
		if err != nil {
			t.Fatalf("DecodeLength: %v", err)
		}
		if int(length) != len(frame)-LengthPrefixSize {
			t.Fatalf("length prefix %d does not match body %d", length, len(frame)-LengthPrefixSize)
		}

		got, err := DecodeBody(frame[LengthPrefixSize:])
		if err != nil {
			t.Fatalf("DecodeBody: %v", err)
		}
		if got.ChannelID != want.ChannelID || got.Count != want.Count {
			t.Fatalf("got %+v, want %+v", got, want)
		}
		if len(got.Data) != len(want.Data) {
			t.Fatalf("data length mismatch: got %d want %d", len(got.Data), len(want.Data))
		}
	}
}

func TestDecodeBodyRejectsShortFrame(t *testing.T) {
	// total length must be >= 5 (§6)
	if _, err := DecodeBody([]byte{0, 0, 0}); err == nil {
		t.Fatal("expected error for short frame")
	}
	if _, err := DecodeBody(nil); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestDecodeBodyMinimalFrame(t *testing.T) {
	// exactly 5 bytes (header, no data) must decode cleanly
	m := Message{ChannelID: 42, Count: 9}
	frame := Encode(m)
	got, err := DecodeBody(frame[LengthPrefixSize:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ChannelID != 42 || got.Count != 9 || len(got.Data) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestEncodeFrameDecodeLength(t *testing.T) {
	body := []byte("snapshot-bytes")
	frame := EncodeFrame(body)
	length, err := DecodeLength(frame)
	if err != nil {
		t.Fatalf("DecodeLength: %v", err)
	}
	if int(length) != len(body) {
		t.Fatalf("got length %d, want %d", length, len(body))
	}
}
