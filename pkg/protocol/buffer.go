package protocol

// Buffer is a mutable byte view over a shared backing array. The backing
// storage is an ordinary Go slice, so views created from the same buffer
// share bytes and the garbage collector owns the storage.
//
// A Buffer tracks a moveable start: MoveStart shrinks the view from the
// front without copying, which lets partial frames travel between the
// transport, the codec, and the message assembler without reallocation.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// BufferOf returns a buffer viewing b. The view shares b's backing array.
func BufferOf(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Len returns the number of bytes in the view.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the view's capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Spare returns the number of bytes that can be added before the view
// reaches its capacity.
func (b *Buffer) Spare() int { return cap(b.data) - len(b.data) }

// Empty reports whether the view holds no bytes.
func (b *Buffer) Empty() bool { return len(b.data) == 0 }

// Bytes returns the viewed bytes. The slice shares the backing array; it
// is valid until the next mutating call.
func (b *Buffer) Bytes() []byte { return b.data }

// At returns the byte at index i.
func (b *Buffer) At(i int) byte { return b.data[i] }

// SetAt overwrites the byte at index i.
func (b *Buffer) SetAt(i int, v byte) { b.data[i] = v }

// Slice returns a view of bytes [i, j). The view shares the backing array
// and its capacity equals its length, so it can never grow beyond its
// original range.
func (b *Buffer) Slice(i, j int) *Buffer {
	return &Buffer{data: b.data[i:j:j]}
}

// Window returns an empty view over the same backing array whose capacity
// is min(capacity, b.Cap()). Used to assemble a frame with a per-frame
// size limit inside a larger reusable buffer.
func (b *Buffer) Window(capacity int) *Buffer {
	if capacity > cap(b.data) {
		capacity = cap(b.data)
	}
	return &Buffer{data: b.data[0:0:capacity]}
}

// MoveStart advances the start of the view by n bytes, shrinking it from
// the front. The bytes before the new start remain in the backing array
// but are no longer reachable through this view.
func (b *Buffer) MoveStart(n int) {
	b.data = b.data[n:]
}

// SetLen shortens or extends the view to n bytes. Extending past the
// current length exposes whatever bytes the backing array holds; n must
// not exceed Cap.
func (b *Buffer) SetLen(n int) {
	b.data = b.data[:n]
}

// Clear resets the view to zero length, keeping the backing array.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
}

// Add appends p to the view. The backing array grows if needed; callers
// that must stay within a fixed frame budget consult Spare before adding.
func (b *Buffer) Add(p []byte) {
	b.data = append(b.data, p...)
}

// AddByte appends a single byte.
func (b *Buffer) AddByte(v byte) {
	b.data = append(b.data, v)
}

// AddUvarint appends the varint encoding of v.
func (b *Buffer) AddUvarint(v uint64) {
	b.data = AppendUvarint(b.data, v)
}

// CopyTo copies the view's bytes into dst and returns the number copied.
func (b *Buffer) CopyTo(dst []byte) int {
	return copy(dst, b.data)
}
