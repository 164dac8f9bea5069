package protocol

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

// Mode selects how a codec Write call treats its input.
type Mode int

const (
	// ModeRaw passes plaintext through uncompressed, appending the CRC-32
	// trailer. Used for messages without the compressed flag.
	ModeRaw Mode = iota

	// ModeNoFlush buffers input in the deflate stream without producing
	// output.
	ModeNoFlush

	// ModeSyncFlush ends the produced block at a byte boundary with the
	// 00 00 FF FF sync trailer, which is then overwritten by the running
	// plaintext CRC-32. This is the per-frame default.
	ModeSyncFlush

	// ModeFinish terminates the deflate stream.
	ModeFinish
)

// deflateTrailer is the fixed tail of every sync-flushed deflate block: an
// empty stored block with LEN=0x0000, NLEN=0xFFFF.
var deflateTrailer = [4]byte{0x00, 0x00, 0xFF, 0xFF}

// ErrChecksumMismatch is returned when a frame's CRC-32 trailer does not
// match the receiver's own plaintext accumulator. It is fatal for the
// connection.
var ErrChecksumMismatch = errors.New("protocol: frame checksum mismatch")

// CodecError wraps a compression failure other than a short output buffer.
// It is fatal for the connection.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("protocol: codec %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

const (
	// deflateHeadroom is reserved output space for the flush trailer when
	// a Write must cap its input to the output's spare capacity.
	deflateHeadroom = 12

	// minDeflateSpare is the largest spare capacity not worth compressing
	// into; at or below it a partial Write consumes nothing rather than
	// emit a pathological tiny tail.
	minDeflateSpare = 100

	// deflateWindowSize is the deflate dictionary window carried across
	// frames of one direction.
	deflateWindowSize = 32768

	// maxInflatedFrame caps the plaintext produced by a single frame, as
	// a guard against decompression bombs.
	maxInflatedFrame = 16 << 20
)

// deflateBound is a conservative upper bound on the compressed size of n
// input bytes, mirroring zlib's deflateBound for a sync-flushed write.
func deflateBound(n int) int {
	return n + (n >> 12) + (n >> 14) + (n >> 25) + 13
}

// Deflater is the sending half of the compression codec. It owns a
// persistent deflate stream whose dictionary window spans all compressed
// frames sent on the connection, and a CRC-32 accumulator over every
// plaintext byte it processes, compressed or raw, in wire order.
type Deflater struct {
	checksum Checksum
	w        *flate.Writer
	buf      bytes.Buffer
}

// NewDeflater returns a Deflater compressing at the given flate level.
func NewDeflater(level int) (*Deflater, error) {
	d := &Deflater{}
	w, err := flate.NewWriter(&d.buf, level)
	if err != nil {
		return nil, &CodecError{Op: "init", Err: err}
	}
	d.w = w
	return d, nil
}

// Write consumes as much of input as the output's spare capacity allows,
// moving the input view's start forward, and appends the produced frame
// payload to output.
//
// In ModeRaw the payload is the plaintext followed by the 4-byte
// big-endian running CRC-32. In ModeSyncFlush it is a deflate block
// sync-flushed at a byte boundary whose 00 00 FF FF trailer is overwritten
// with the CRC. ModeNoFlush buffers input without producing output;
// ModeFinish terminates the stream.
func (d *Deflater) Write(input, output *Buffer, mode Mode) error {
	switch mode {
	case ModeRaw:
		return d.writeRaw(input, output)
	case ModeNoFlush:
		return d.writeDeflate(input, output, false)
	case ModeSyncFlush:
		return d.writeDeflate(input, output, true)
	case ModeFinish:
		return d.finish(input, output)
	default:
		return &CodecError{Op: "write", Err: fmt.Errorf("unknown mode %d", mode)}
	}
}

func (d *Deflater) writeRaw(input, output *Buffer) error {
	n := input.Len()
	if max := output.Spare() - ChecksumSize; n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	chunk := input.Bytes()[:n]
	d.checksum.Write(chunk)
	output.Add(chunk)

	var trailer [ChecksumSize]byte
	d.checksum.PutSum(trailer[:])
	output.Add(trailer[:])
	input.MoveStart(n)
	return nil
}

func (d *Deflater) writeDeflate(input, output *Buffer, flush bool) error {
	n := input.Len()
	if flush && deflateBound(n) > output.Spare() {
		// The whole input is not guaranteed to fit: cap it, leaving
		// headroom for the flush trailer.
		if output.Spare() <= minDeflateSpare {
			return nil
		}
		n = output.Spare() - deflateHeadroom
		if n > input.Len() {
			n = input.Len()
		}
	}

	chunk := input.Bytes()[:n]
	d.checksum.Write(chunk)
	if _, err := d.w.Write(chunk); err != nil {
		return &CodecError{Op: "deflate", Err: err}
	}
	input.MoveStart(n)
	if !flush {
		return nil
	}

	if err := d.w.Flush(); err != nil {
		return &CodecError{Op: "deflate flush", Err: err}
	}
	comp := d.buf.Bytes()
	if len(comp) > output.Spare() {
		return &CodecError{Op: "deflate", Err: io.ErrShortBuffer}
	}
	// Every sync-flushed block ends in 00 00 FF FF; fold the running
	// plaintext CRC over those four bytes.
	d.checksum.PutSum(comp)
	output.Add(comp)
	d.buf.Reset()
	return nil
}

func (d *Deflater) finish(input, output *Buffer) error {
	chunk := input.Bytes()
	d.checksum.Write(chunk)
	if _, err := d.w.Write(chunk); err != nil {
		return &CodecError{Op: "deflate", Err: err}
	}
	input.MoveStart(len(chunk))
	if err := d.w.Close(); err != nil {
		return &CodecError{Op: "deflate finish", Err: err}
	}
	output.Add(d.buf.Bytes())
	d.buf.Reset()
	return nil
}

// Inflater is the receiving half of the compression codec. It mirrors the
// peer Deflater's state: a CRC-32 accumulator over every plaintext byte in
// wire order and the deflate dictionary window carried across compressed
// frames.
//
// Each compressed frame ends at a sync-flush block boundary, so the frame
// is inflated by a fresh deflate reader primed with the carried window:
// the stream continues exactly where the previous frame left off.
type Inflater struct {
	checksum Checksum
	window   []byte
	scratch  [deflateWindowSize]byte
}

// NewInflater returns an Inflater with an empty window.
func NewInflater() *Inflater {
	return &Inflater{}
}

// Write consumes the entire input view, which must hold exactly one
// frame's payload, and appends the recovered plaintext to output (growing
// it as needed).
//
// In ModeRaw the payload is plaintext plus the CRC trailer. In
// ModeSyncFlush the last four bytes are the CRC that the sender folded
// over the deflate sync trailer: they are stripped, a synthetic
// 00 00 FF FF trailer is restored, and the block is inflated. In both
// modes the trailer is verified against the receiver's own plaintext
// accumulator.
func (z *Inflater) Write(input, output *Buffer, mode Mode) error {
	if input.Len() < ChecksumSize {
		return &CodecError{Op: "inflate", Err: io.ErrUnexpectedEOF}
	}
	expected := ReadSum(input.Bytes())

	switch mode {
	case ModeRaw:
		plain := input.Bytes()[:input.Len()-ChecksumSize]
		z.checksum.Write(plain)
		if z.checksum.Sum() != expected {
			return ErrChecksumMismatch
		}
		output.Add(plain)
		input.MoveStart(input.Len())
		return nil

	case ModeSyncFlush:
		comp := input.Bytes()[:input.Len()-ChecksumSize]
		if err := z.inflate(comp, output); err != nil {
			return err
		}
		if z.checksum.Sum() != expected {
			return ErrChecksumMismatch
		}
		input.MoveStart(input.Len())
		return nil

	default:
		return &CodecError{Op: "inflate", Err: fmt.Errorf("unsupported mode %d", mode)}
	}
}

func (z *Inflater) inflate(comp []byte, output *Buffer) error {
	src := io.MultiReader(bytes.NewReader(comp), bytes.NewReader(deflateTrailer[:]))
	r := flate.NewReaderDict(src, z.window)
	defer r.Close()

	var produced int
	for {
		n, err := r.Read(z.scratch[:])
		if n > 0 {
			produced += n
			if produced > maxInflatedFrame {
				return &CodecError{Op: "inflate", Err: errors.New("frame inflates beyond limit")}
			}
			plain := z.scratch[:n]
			z.checksum.Write(plain)
			z.remember(plain)
			output.Add(plain)
		}
		if err != nil {
			// The synthetic trailer leaves the stream paused at a block
			// boundary; the reader reports that as an unexpected EOF.
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return &CodecError{Op: "inflate", Err: err}
		}
	}
}

// remember appends plain to the carried dictionary window, keeping the
// last deflateWindowSize bytes.
func (z *Inflater) remember(plain []byte) {
	if len(plain) >= deflateWindowSize {
		z.window = append(z.window[:0], plain[len(plain)-deflateWindowSize:]...)
		return
	}
	if overflow := len(z.window) + len(plain) - deflateWindowSize; overflow > 0 {
		z.window = z.window[:copy(z.window, z.window[overflow:])]
	}
	z.window = append(z.window, plain...)
}
