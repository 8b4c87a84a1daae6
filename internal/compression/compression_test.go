package compression

import (
	"bytes"
	"math/rand"
	"testing"
)

var codecs = []Type{None, Snappy, Zstd, LZ4}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := make([]byte, 4096)
	rng.Read(random)

	inputs := [][]byte{
		nil,
		[]byte("x"),
		bytes.Repeat([]byte("compressible text "), 500),
		random, // incompressible
	}

	for _, codec := range codecs {
		for i, in := range inputs {
			compressed, err := Compress(codec, in)
			if err != nil {
				t.Fatalf("%s input %d: Compress: %v", codec, i, err)
			}
			out, err := Decompress(codec, compressed, len(in))
			if err != nil {
				t.Fatalf("%s input %d: Decompress: %v", codec, i, err)
			}
			if !bytes.Equal(out, in) {
				t.Fatalf("%s input %d: round trip mismatch (%d bytes in, %d out)", codec, i, len(in), len(out))
			}
		}
	}
}

func TestCompressibleInputShrinks(t *testing.T) {
	in := bytes.Repeat([]byte("the same twenty bytes"), 1000)
	for _, codec := range []Type{Snappy, Zstd, LZ4} {
		compressed, err := Compress(codec, in)
		if err != nil {
			t.Fatalf("%s: %v", codec, err)
		}
		if len(compressed) >= len(in) {
			t.Fatalf("%s: %d bytes did not shrink below %d", codec, len(compressed), len(in))
		}
	}
}

func TestDecompressRejectsWrongLength(t *testing.T) {
	compressed, err := Compress(Snappy, []byte("hello world"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if _, err := Decompress(Snappy, compressed, 3); err == nil {
		t.Fatalf("Decompress with wrong expected length = nil error")
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	if _, err := Compress(Type(42), []byte("x")); err == nil {
		t.Fatalf("Compress(unknown) = nil error")
	}
	if _, err := Decompress(Type(42), []byte("x"), 1); err == nil {
		t.Fatalf("Decompress(unknown) = nil error")
	}
}
