package protocol

import (
	"bytes"
	"testing"
)

func TestBufferBasics(t *testing.T) {
	b := NewBuffer(16)
	if b.Len() != 0 || b.Cap() != 16 || b.Spare() != 16 || !b.Empty() {
		t.Fatalf("fresh buffer: len=%d cap=%d spare=%d", b.Len(), b.Cap(), b.Spare())
	}

	b.Add([]byte("hello"))
	b.AddByte('!')
	if got := string(b.Bytes()); got != "hello!" {
		t.Errorf("Bytes() = %q; want %q", got, "hello!")
	}
	if b.Spare() != 10 {
		t.Errorf("Spare() = %d; want 10", b.Spare())
	}
	if b.At(0) != 'h' {
		t.Errorf("At(0) = %c; want h", b.At(0))
	}

	b.SetAt(5, '?')
	if b.At(5) != '?' {
		t.Errorf("SetAt did not stick")
	}

	b.Clear()
	if b.Len() != 0 || b.Cap() != 16 {
		t.Errorf("Clear lost the backing array: len=%d cap=%d", b.Len(), b.Cap())
	}
}

func TestBufferSliceSharesBacking(t *testing.T) {
	b := NewBuffer(8)
	b.Add([]byte("abcdef"))

	view := b.Slice(1, 4)
	if got := string(view.Bytes()); got != "bcd" {
		t.Fatalf("Slice(1,4) = %q; want bcd", got)
	}
	if view.Cap() != view.Len() {
		t.Errorf("slice cap %d != len %d; a slice must not grow past its range", view.Cap(), view.Len())
	}

	view.SetAt(0, 'X')
	if b.At(1) != 'X' {
		t.Errorf("slice does not share the parent's backing array")
	}
}

func TestBufferMoveStart(t *testing.T) {
	b := BufferOf([]byte("0123456789"))
	b.MoveStart(4)
	if got := string(b.Bytes()); got != "456789" {
		t.Errorf("after MoveStart(4): %q; want 456789", got)
	}
	b.MoveStart(6)
	if !b.Empty() {
		t.Errorf("buffer should be empty after consuming all bytes")
	}
}

func TestBufferWindow(t *testing.T) {
	b := NewBuffer(64)
	w := b.Window(10)
	if w.Len() != 0 || w.Cap() != 10 {
		t.Fatalf("Window(10): len=%d cap=%d", w.Len(), w.Cap())
	}
	w.Add(bytes.Repeat([]byte{0xAB}, 10))
	if w.Spare() != 0 {
		t.Errorf("window spare = %d; want 0", w.Spare())
	}

	// A window larger than the backing is clamped.
	if got := b.Window(128).Cap(); got != 64 {
		t.Errorf("oversized window cap = %d; want 64", got)
	}
}

func TestBufferAddUvarint(t *testing.T) {
	b := NewBuffer(16)
	b.AddUvarint(300)
	want := AppendUvarint(nil, 300)
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("AddUvarint(300) = %x; want %x", b.Bytes(), want)
	}
}

func TestBufferCopyTo(t *testing.T) {
	b := BufferOf([]byte("copy me"))
	dst := make([]byte, 4)
	if n := b.CopyTo(dst); n != 4 || string(dst) != "copy" {
		t.Errorf("CopyTo = %d, %q", n, dst)
	}
}
