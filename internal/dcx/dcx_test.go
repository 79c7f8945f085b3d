package dcx

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("The quick brown fox")

	encoded, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(encoded) < 4 || string(encoded[:3]) != "DCX" {
		t.Fatalf("encoded package does not start with DCX magic: %q", encoded[:4])
	}

	const want uint32 = 0x44435800 // "DCX\x00" as a big-endian uint32
	got := uint32(encoded[0])<<24 | uint32(encoded[1])<<16 | uint32(encoded[2])<<8 | uint32(encoded[3])
	if got != want {
		t.Errorf("DCX magic = %#08x, want %#08x", got, want)
	}

	hasDFLT := false
	for i := 0; i+4 <= len(encoded); i++ {
		if string(encoded[i:i+4]) == "DFLT" {
			hasDFLT = true
			break
		}
	}
	if !hasDFLT {
		t.Error("encoded package does not contain ASCII \"DFLT\" method tag")
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Errorf("Decode(Encode(p)) = %q, want %q", decoded, payload)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	bad := []byte("XXXX\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	if _, err := Decode(bad); err == nil {
		t.Fatal("Decode with bad magic should fail")
	}
}

func TestEncodeIdempotenceAcrossPayloadSizes(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("a"),
		make([]byte, 1000),
		[]byte("repeated repeated repeated repeated repeated data"),
	}
	for _, p := range payloads {
		encoded, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode(%d bytes): %v", len(p), err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%d bytes): %v", len(p), err)
		}
		if len(decoded) != len(p) {
			t.Fatalf("round trip changed length: got %d, want %d", len(decoded), len(p))
		}
		for i := range p {
			if decoded[i] != p[i] {
				t.Fatalf("round trip mismatch at byte %d", i)
			}
		}

		reEncoded, err := Encode(decoded)
		if err != nil {
			t.Fatalf("re-Encode: %v", err)
		}
		reDecoded, err := Decode(reEncoded)
		if err != nil {
			t.Fatalf("re-Decode: %v", err)
		}
		if string(reDecoded) != string(decoded) {
			t.Fatal("encode(decode(c)) did not decode back to the same payload")
		}
	}
}
