package blip

import (
	"bytes"

	"github.com/blip-io/blip/pkg/protocol"
)

// Well-known property keys.
const (
	// ProfileProperty names the handler a request should be dispatched to.
	ProfileProperty = "Profile"

	// ErrorDomainProperty carries the error domain of an ERR message.
	// Absent means DomainBLIP.
	ErrorDomainProperty = "Error-Domain"

	// ErrorCodeProperty carries the stringified integer code of an ERR
	// message.
	ErrorCodeProperty = "Error-Code"
)

// property is one ordered key/value pair of a message header.
type property struct {
	key, value string
}

// encodePropertyBlock renders ordered pairs as concatenated NUL-terminated
// key, NUL-terminated value strings, without the length prefix.
func encodePropertyBlock(props []property) []byte {
	var size int
	for _, p := range props {
		size += len(p.key) + len(p.value) + 2
	}
	block := make([]byte, 0, size)
	for _, p := range props {
		block = append(block, p.key...)
		block = append(block, 0)
		block = append(block, p.value...)
		block = append(block, 0)
	}
	return block
}

// encodeProperties renders ordered pairs in wire form: a varint giving the
// byte length of the block followed by the block itself. Keys and values
// must not contain NUL.
func encodeProperties(props []property) []byte {
	block := encodePropertyBlock(props)
	buf := make([]byte, 0, protocol.UvarintLen(uint64(len(block)))+len(block))
	buf = protocol.AppendUvarint(buf, uint64(len(block)))
	return append(buf, block...)
}

// forEachProperty scans an encoded property block (without the length
// prefix), yielding successive key/value pairs until yield returns false
// or the block is exhausted.
func forEachProperty(block []byte, yield func(key, value string) bool) {
	for len(block) > 0 {
		key, rest, ok := cutNUL(block)
		if !ok {
			return
		}
		value, rest, ok := cutNUL(rest)
		if !ok {
			return
		}
		if !yield(key, value) {
			return
		}
		block = rest
	}
}

// cutNUL splits block at its first NUL byte.
func cutNUL(block []byte) (s string, rest []byte, ok bool) {
	i := bytes.IndexByte(block, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(block[:i]), block[i+1:], true
}
