package codec

import (
	"testing"
)

func TestBoolRoundTrip(t *testing.T) {
	d := Descriptor{DBNumber: 10, Offset: 0, Type: Bool, BitPos: 3, HasBitPos: true}
	// wire byte 0x08 has bit 3 set
	v, err := Decode(d, []byte{0x08})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != true {
		t.Fatalf("expected true, got %v", v)
	}

	encoded, err := Encode(d, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded[0] != 0x08 {
		t.Fatalf("expected 0x08, got %#x", encoded[0])
	}
}

func TestWriteIntNegative(t *testing.T) {
	d := Descriptor{DBNumber: 20, Offset: 4, Type: Int}
	encoded, err := Encode(d, -17)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(encoded) != 2 || encoded[0] != 0xFF || encoded[1] != 0xEF {
		t.Fatalf("expected [0xFF 0xEF], got %#v", encoded)
	}

	decoded, err := Decode(d, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != int16(-17) {
		t.Fatalf("expected -17, got %v", decoded)
	}
}

func TestWriteStringTruncatesAndFormatsHeader(t *testing.T) {
	d := Descriptor{DBNumber: 5, Offset: 0, Type: String, MaxLength: 10}
	encoded, err := Encode(d, "HELLO")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{10, 5, 'H', 'E', 'L', 'L', 'O'}
	if len(encoded) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", encoded, want)
	}
	for i := range want {
		if encoded[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %#v want %#v", i, encoded, want)
		}
	}

	d2 := Descriptor{DBNumber: 5, Offset: 0, Type: String, MaxLength: 3}
	truncated, err := Encode(d2, "HELLO")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(truncated[2:]) != "HEL" {
		t.Fatalf("expected truncation to 'HEL', got %q", string(truncated[2:]))
	}
}

func TestStringDecodeRespectsActualLength(t *testing.T) {
	d := Descriptor{DBNumber: 5, Offset: 0, Type: String, MaxLength: 10}
	data := []byte{10, 5, 'H', 'E', 'L', 'L', 'O', 'X', 'X', 'X', 'X', 'X'}
	v, err := Decode(d, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != "HELLO" {
		t.Fatalf("expected HELLO, got %v", v)
	}
}

func TestRealRoundTrip(t *testing.T) {
	d := Descriptor{DBNumber: 1, Offset: 0, Type: Real}
	encoded, err := Encode(d, 3.5)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(d, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.(float32)
	if !ok {
		t.Fatalf("expected float32, got %T", decoded)
	}
	if got != 3.5 {
		t.Fatalf("expected 3.5, got %v", got)
	}
}

func TestDintRoundTripFullRange(t *testing.T) {
	d := Descriptor{DBNumber: 1, Offset: 0, Type: Dint}
	for _, v := range []int32{0, 1, -1, 2147483647, -2147483648} {
		encoded, err := Encode(d, v)
		if err != nil {
			t.Fatalf("encode(%d): %v", v, err)
		}
		decoded, err := Decode(d, encoded)
		if err != nil {
			t.Fatalf("decode(%d): %v", v, err)
		}
		if decoded != v {
			t.Fatalf("round trip mismatch: want %d got %v", v, decoded)
		}
	}
}

func TestIntOverflowFailsValueOutOfRange(t *testing.T) {
	d := Descriptor{DBNumber: 1, Offset: 0, Type: Int}
	_, err := Encode(d, 70000)
	if err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestBoolCoercionFromString(t *testing.T) {
	d := Descriptor{DBNumber: 1, Offset: 0, Type: Bool, BitPos: 0, HasBitPos: true}
	for _, in := range []string{"true", "TRUE", "False", "false"} {
		if _, err := Encode(d, in); err != nil {
			t.Fatalf("encode(%q): %v", in, err)
		}
	}
	if _, err := Encode(d, "maybe"); err == nil {
		t.Fatal("expected error for non-boolean string")
	}
}

func TestSize(t *testing.T) {
	cases := []struct {
		d    Descriptor
		want int
	}{
		{Descriptor{Type: Bool, HasBitPos: true}, 1},
		{Descriptor{Type: Int}, 2},
		{Descriptor{Type: Dint}, 4},
		{Descriptor{Type: Real}, 4},
		{Descriptor{Type: String}, 256},
		{Descriptor{Type: String, MaxLength: 10}, 12},
	}
	for _, c := range cases {
		got, err := Size(c.d)
		if err != nil {
			t.Fatalf("size(%v): %v", c.d, err)
		}
		if got != c.want {
			t.Fatalf("size(%v) = %d, want %d", c.d, got, c.want)
		}
	}
}
