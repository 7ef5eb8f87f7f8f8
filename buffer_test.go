package keel

import (
	"bytes"
	"testing"
)

func TestBufferWrite(t *testing.T) {
	b := newBuffer(16)

	n, err := b.Write([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || b.Len() != 5 {
		t.Fatalf("wrote %d, len %d", n, b.Len())
	}
	if !bytes.Equal(b.Bytes(), []byte("hello")) {
		t.Fatalf("staged %q", b.Bytes())
	}
	if b.Available() != 11 {
		t.Fatalf("available %d", b.Available())
	}
}

func TestBufferCeiling(t *testing.T) {
	b := newBuffer(4)

	if _, err := b.Write([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write([]byte("e")); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	// a rejected write stages nothing
	if b.Len() != 4 {
		t.Fatalf("len %d after rejected write", b.Len())
	}
	if err := b.WriteByte('e'); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}

	b.Reset()
	if _, err := b.WriteString("wxyz"); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b.Bytes(), []byte("wxyz")) {
		t.Fatalf("staged %q", b.Bytes())
	}
}

func TestBufferConsume(t *testing.T) {
	b := newBuffer(16)
	b.Write([]byte("abcdef")) //nolint:errcheck

	b.consume(2)
	if !bytes.Equal(b.Bytes(), []byte("cdef")) {
		t.Fatalf("staged %q after partial consume", b.Bytes())
	}

	b.consume(10)
	if b.Len() != 0 {
		t.Fatalf("len %d after full consume", b.Len())
	}
}
