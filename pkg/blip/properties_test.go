package blip

import (
	"bytes"
	"testing"

	"github.com/blip-io/blip/pkg/protocol"
)

func TestEncodeProperties(t *testing.T) {
	props := []property{
		{"Profile", "Insult"},
		{"Language", "French"},
	}
	encoded := encodeProperties(props)

	size, n, err := protocol.DecodeUvarint(encoded)
	if err != nil {
		t.Fatalf("length prefix: %v", err)
	}
	block := encoded[n:]
	if uint64(len(block)) != size {
		t.Fatalf("declared %d bytes, block has %d", size, len(block))
	}
	want := []byte("Profile\x00Insult\x00Language\x00French\x00")
	if !bytes.Equal(block, want) {
		t.Errorf("block = %q; want %q", block, want)
	}
}

func TestEncodePropertiesEmpty(t *testing.T) {
	encoded := encodeProperties(nil)
	if !bytes.Equal(encoded, []byte{0}) {
		t.Errorf("empty properties = %x; want 00", encoded)
	}
}

func TestForEachPropertyOrder(t *testing.T) {
	block := encodePropertyBlock([]property{
		{"a", "1"},
		{"b", "2"},
		{"a", "3"}, // wire order is preserved even for duplicate keys
	})

	var got []property
	forEachProperty(block, func(k, v string) bool {
		got = append(got, property{k, v})
		return true
	})
	want := []property{{"a", "1"}, {"b", "2"}, {"a", "3"}}
	if len(got) != len(want) {
		t.Fatalf("yielded %d pairs; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestForEachPropertyEarlyStop(t *testing.T) {
	block := encodePropertyBlock([]property{{"a", "1"}, {"b", "2"}})
	var count int
	forEachProperty(block, func(k, v string) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("yield ran %d times after returning false", count)
	}
}

func TestForEachPropertyMalformedBlock(t *testing.T) {
	// A dangling key without its value terminator yields nothing extra.
	var count int
	forEachProperty([]byte("key\x00unterminated"), func(k, v string) bool {
		count++
		return true
	})
	if count != 0 {
		t.Errorf("malformed block yielded %d pairs", count)
	}
}

func TestSetPropertyRejectsNUL(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("SetProperty with NUL should panic")
		}
	}()
	m := newMessage(protocol.TypeRequest)
	m.SetProperty("bad\x00key", "value")
}

func TestSetPropertyReplacesInPlace(t *testing.T) {
	m := newMessage(protocol.TypeRequest)
	m.SetProperty("a", "1")
	m.SetProperty("b", "2")
	m.SetProperty("a", "3")

	if got := m.Property("a"); got != "3" {
		t.Errorf("Property(a) = %q; want 3", got)
	}
	if len(m.props) != 2 {
		t.Errorf("replacement grew the property list to %d", len(m.props))
	}
	if m.props[0].key != "a" {
		t.Errorf("replacement changed ordering")
	}
}
