// Package protocol implements the wire-level primitives of the BLIP
// protocol: varint encoding, the rolling CRC-32 checksum, shared byte
// views, frame flags and thresholds, and the streaming compression codecs.
//
// BLIP multiplexes request/response messages over a single bidirectional
// binary-message transport (typically WebSocket). Each transport message
// carries one frame of one BLIP message:
//
//	┌──────────────────┬───────────┬──────────────────────────────┐
//	│ message number   │ flags     │ payload                      │
//	│ (varint)         │ (1 byte)  │ (variable)                   │
//	└──────────────────┴───────────┴──────────────────────────────┘
//
// The flag byte packs the message type into bits 0–2 and per-frame state
// into bits 3–6:
//
//	bit 3  compressed   payload is part of a deflate stream
//	bit 4  urgent       sender wants larger frames for this message
//	bit 5  noReply      request does not expect a response
//	bit 6  moreComing   set on every frame except the last of a message
//
// For REQ/RES/ERR frames the payload ends in a 4-byte big-endian CRC-32
// over the cumulative plaintext processed by the direction's codec. On raw
// frames the trailer is appended; on compressed frames it overwrites the
// fixed 00 00 FF FF deflate sync-flush trailer (see Deflater). ACK frames
// carry a bare varint byte count with no trailer.
//
// # Encoding
//
//   - Varint: protobuf-style, 7 data bits per byte, MSB continuation
//   - Properties: varint length prefix, then NUL-terminated key/value pairs
//   - Fixed-width integers: big-endian
//
// The package is organized as follows:
//
//   - varint.go: varint encoding/decoding
//   - checksum.go: rolling CRC-32 accumulator
//   - buffer.go: shared-backing byte views
//   - frame.go: message types, frame flags, thresholds, subprotocol token
//   - compress.go: Deflater and Inflater streaming codecs
package protocol
