package protocol

import (
	"bytes"
	"compress/flate"
	"testing"
)

// frameTrip pushes plain through a Deflater in frame-sized chunks and
// feeds every produced frame payload to an Inflater, returning the
// recovered plaintext and the total wire size.
func frameTrip(t *testing.T, plain []byte, frameSize int, mode Mode) ([]byte, int) {
	t.Helper()

	deflater, err := NewDeflater(flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewDeflater: %v", err)
	}
	inflater := NewInflater()

	input := BufferOf(append([]byte(nil), plain...))
	recovered := NewBuffer(len(plain) + 64)
	var wire int

	for !input.Empty() {
		frame := NewBuffer(frameSize)
		if err := deflater.Write(input, frame, mode); err != nil {
			t.Fatalf("Deflater.Write: %v", err)
		}
		if frame.Empty() {
			t.Fatalf("deflater made no progress with %d bytes left", input.Len())
		}
		wire += frame.Len()

		if err := inflater.Write(frame, recovered, mode); err != nil {
			t.Fatalf("Inflater.Write: %v", err)
		}
		if !frame.Empty() {
			t.Fatalf("inflater left %d bytes of input", frame.Len())
		}
	}
	return recovered.Bytes(), wire
}

func TestRawRoundTrip(t *testing.T) {
	plain := []byte("Your mother was a hamster")
	for _, frameSize := range []int{8, 16, 29, 64, 1024} {
		got, wire := frameTrip(t, plain, frameSize, ModeRaw)
		if !bytes.Equal(got, plain) {
			t.Errorf("frameSize %d: recovered %q; want %q", frameSize, got, plain)
		}
		if wire <= len(plain) {
			t.Errorf("frameSize %d: raw wire size %d should exceed plaintext %d (trailers)", frameSize, wire, len(plain))
		}
	}
}

func TestDeflateRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("And your father smelt of elderberries. "), 72)
	for _, frameSize := range []int{128, 512, 4096, len(plain) + 64} {
		got, wire := frameTrip(t, plain, frameSize, ModeSyncFlush)
		if !bytes.Equal(got, plain) {
			t.Errorf("frameSize %d: recovered %d bytes differ from %d-byte input", frameSize, len(got), len(plain))
		}
		if wire >= len(plain) {
			t.Errorf("frameSize %d: compressed wire size %d not smaller than %d", frameSize, wire, len(plain))
		}
	}
}

func TestDeflateCarriesWindowAcrossFrames(t *testing.T) {
	// The second frame's back-references reach into the first frame's
	// plaintext, so it only survives decoding if the inflater carries the
	// dictionary window between frames.
	phrase := bytes.Repeat([]byte("We are the knights who say ni. "), 40)

	deflater, err := NewDeflater(flate.BestCompression)
	if err != nil {
		t.Fatalf("NewDeflater: %v", err)
	}
	inflater := NewInflater()
	recovered := NewBuffer(2 * len(phrase))

	for i := 0; i < 2; i++ {
		input := BufferOf(append([]byte(nil), phrase...))
		frame := NewBuffer(4 * len(phrase))
		if err := deflater.Write(input, frame, ModeSyncFlush); err != nil {
			t.Fatalf("frame %d: Deflater.Write: %v", i, err)
		}
		if !input.Empty() {
			t.Fatalf("frame %d: %d input bytes left", i, input.Len())
		}
		if err := inflater.Write(frame, recovered, ModeSyncFlush); err != nil {
			t.Fatalf("frame %d: Inflater.Write: %v", i, err)
		}
	}

	want := append(append([]byte(nil), phrase...), phrase...)
	if !bytes.Equal(recovered.Bytes(), want) {
		t.Errorf("recovered %d bytes differ from %d-byte input", recovered.Len(), len(want))
	}
}

func TestDeflatePartialConsumption(t *testing.T) {
	plain := bytes.Repeat([]byte{0xC3}, 20000)
	deflater, err := NewDeflater(flate.NoCompression)
	if err != nil {
		t.Fatalf("NewDeflater: %v", err)
	}

	input := BufferOf(plain)
	frame := NewBuffer(4096)
	if err := deflater.Write(input, frame, ModeSyncFlush); err != nil {
		t.Fatalf("Deflater.Write: %v", err)
	}
	if input.Empty() {
		t.Fatalf("20000 bytes cannot fit a 4096-byte frame; input should remain")
	}
	if frame.Len() > 4096 {
		t.Errorf("frame overflowed its budget: %d bytes", frame.Len())
	}
	if consumed := len(plain) - input.Len(); consumed <= 0 || consumed >= len(plain) {
		t.Errorf("consumed %d bytes; want partial progress", consumed)
	}
}

func TestRawChecksumMismatch(t *testing.T) {
	plain := []byte("She turned me into a newt")

	deflater, err := NewDeflater(flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewDeflater: %v", err)
	}
	frame := NewBuffer(len(plain) + 16)
	if err := deflater.Write(BufferOf(append([]byte(nil), plain...)), frame, ModeRaw); err != nil {
		t.Fatalf("Deflater.Write: %v", err)
	}

	// Flip one bit anywhere in the payload.
	for i := 0; i < frame.Len(); i++ {
		corrupt := append([]byte(nil), frame.Bytes()...)
		corrupt[i] ^= 0x10

		inflater := NewInflater()
		out := NewBuffer(len(plain) + 16)
		if err := inflater.Write(BufferOf(corrupt), out, ModeRaw); err != ErrChecksumMismatch {
			t.Fatalf("bit flip at byte %d: error = %v; want ErrChecksumMismatch", i, err)
		}
	}
}

func TestDeflateChecksumMismatch(t *testing.T) {
	plain := bytes.Repeat([]byte("I got better. "), 30)

	deflater, err := NewDeflater(flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewDeflater: %v", err)
	}
	frame := NewBuffer(len(plain) + 64)
	if err := deflater.Write(BufferOf(append([]byte(nil), plain...)), frame, ModeSyncFlush); err != nil {
		t.Fatalf("Deflater.Write: %v", err)
	}

	// Corrupting the trailer must always surface as a checksum mismatch;
	// corrupting the deflate data may surface as either a checksum
	// mismatch or a codec error depending on where it lands.
	corrupt := append([]byte(nil), frame.Bytes()...)
	corrupt[len(corrupt)-1] ^= 0x01

	inflater := NewInflater()
	out := NewBuffer(len(plain) + 64)
	if err := inflater.Write(BufferOf(corrupt), out, ModeSyncFlush); err != ErrChecksumMismatch {
		t.Errorf("trailer corruption: error = %v; want ErrChecksumMismatch", err)
	}
}

func TestMixedRawAndCompressedShareChecksum(t *testing.T) {
	// Raw and compressed frames of one direction run through the same
	// accumulator, in wire order.
	deflater, err := NewDeflater(flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewDeflater: %v", err)
	}
	inflater := NewInflater()

	chunks := [][]byte{
		[]byte("raw first"),
		bytes.Repeat([]byte("then compressed "), 16),
		[]byte("raw again"),
	}
	modes := []Mode{ModeRaw, ModeSyncFlush, ModeRaw}

	out := NewBuffer(1024)
	for i, chunk := range chunks {
		frame := NewBuffer(len(chunk) + 64)
		if err := deflater.Write(BufferOf(append([]byte(nil), chunk...)), frame, modes[i]); err != nil {
			t.Fatalf("chunk %d: Deflater.Write: %v", i, err)
		}
		if err := inflater.Write(frame, out, modes[i]); err != nil {
			t.Fatalf("chunk %d: Inflater.Write: %v", i, err)
		}
	}

	want := bytes.Join(chunks, nil)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("recovered bytes differ")
	}
}

func TestInflaterRejectsShortFrame(t *testing.T) {
	inflater := NewInflater()
	out := NewBuffer(16)
	if err := inflater.Write(BufferOf([]byte{1, 2}), out, ModeRaw); err == nil {
		t.Errorf("a frame shorter than the trailer must fail")
	}
}
