package otb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer emits OTB node framing, escaping payload bytes that collide with
// the control alphabet. It is the inverse of Walker/PropReader.
//
// BeginNode/EndNode calls must nest correctly; the Writer does not verify
// balance. Call Flush once the tree is complete.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps a writer for node emission.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteMagic writes the 4-byte file identifier, unescaped, ahead of the root
// node.
func (w *Writer) WriteMagic(magic [4]byte) error {
	_, err := w.bw.Write(magic[:])
	return err
}

// BeginNode opens a node of the given type.
func (w *Writer) BeginNode(nodeType uint8) error {
	if err := w.bw.WriteByte(NODE_START); err != nil {
		return err
	}
	return w.WriteByte(nodeType)
}

// EndNode closes the most recently opened node.
func (w *Writer) EndNode() error {
	return w.bw.WriteByte(NODE_END)
}

// WriteByte writes one logical payload byte, escaping it if needed.
func (w *Writer) WriteByte(b byte) error {
	if b == ESCAPE_CHAR || b == NODE_START || b == NODE_END {
		if err := w.bw.WriteByte(ESCAPE_CHAR); err != nil {
			return err
		}
	}
	return w.bw.WriteByte(b)
}

// Write writes logical payload bytes, escaping as needed. Implements
// io.Writer so binary.Write can encode fixed-layout fields straight into a
// node.
func (w *Writer) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := w.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// WriteU8 writes a payload uint8.
func (w *Writer) WriteU8(v uint8) error {
	return w.WriteByte(v)
}

// WriteU16 writes a little-endian payload uint16.
func (w *Writer) WriteU16(v uint16) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// WriteU32 writes a little-endian payload uint32.
func (w *Writer) WriteU32(v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// WriteString writes a u16-length-prefixed string payload field. Strings
// longer than the prefix can express are an error, not a truncation.
func (w *Writer) WriteString(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string of %d bytes does not fit a u16 length prefix", len(s))
	}
	if err := w.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// Flush writes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
