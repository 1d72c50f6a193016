// Package otb implements the low-level framing shared by the OTB family of
// binary files (items.otb, *.otbm), as implemented in OpenTibia Server's
// fileloader.cpp.
//
// A file is a tree of nodes. A node begins with NODE_START and a one-byte
// type tag, carries an arbitrary run of payload bytes, and ends with
// NODE_END. A NODE_START encountered inside a node opens a child; a
// NODE_START immediately after a NODE_END opens the next sibling. Payload
// bytes that collide with the three control values are prefixed with
// ESCAPE_CHAR.
//
// Nodes carry no length prefix, so a payload can only be consumed by walking
// to a delimiter. Walker and PropReader expose that as a one-pass streaming
// cursor; nothing is buffered beyond the underlying bufio reader.
package otb

import (
	"bufio"
	"fmt"
	"io"
)

// Various special-meaning characters that might be encountered while parsing
// a node.
const (
	ESCAPE_CHAR = 0xFD // Following character should be read verbatim, even if it otherwise has a special meaning.
	NODE_START  = 0xFE // From this character onwards, this is a new OTB node. If preceded by NODE_END, this is the next sibling node. Otherwise, it's a child node.
	NODE_END    = 0xFF // This character marks the end of the latest OTB node. If immediately followed by a NODE_START, that will be the next sibling node.
)

// Walker provides sequential access to the node grammar of an OTB-framed
// stream.
//
// The Walker hands out one PropReader per node; the caller must consume or
// Drain a node's payload before touching the stream again. After the
// payload, the PropReader's Delim tells whether child nodes follow
// (NODE_START) or the node is closed (NODE_END).
type Walker struct {
	r      *bufio.Reader
	offset int64
}

// NewWalker wraps a reader for walking.
func NewWalker(r io.Reader) *Walker {
	return &Walker{r: bufio.NewReader(r)}
}

// Offset returns the number of raw bytes consumed so far. Useful for
// reporting where in the file a parse failed.
func (w *Walker) Offset() int64 {
	return w.offset
}

// readRaw reads one raw stream byte, with no escape handling.
func (w *Walker) readRaw() (byte, error) {
	b, err := w.r.ReadByte()
	if err != nil {
		return 0, err
	}
	w.offset++
	return b, nil
}

// ReadMagic reads the 4-byte file identifier. The identifier precedes the
// root node and is not part of the node grammar, so no unescaping applies.
func (w *Walker) ReadMagic() ([4]byte, error) {
	var magic [4]byte
	for i := range magic {
		b, err := w.readRaw()
		if err != nil {
			return magic, fmt.Errorf("error reading magic byte %d: %v", i, err)
		}
		magic[i] = b
	}
	return magic, nil
}

// NextOp reads one stream operation byte, which must be NODE_START or
// NODE_END. Anything else at a node boundary means the stream is desynced.
func (w *Walker) NextOp() (uint8, error) {
	b, err := w.readRaw()
	if err != nil {
		if err == io.EOF {
			return 0, fmt.Errorf("abrupt end of stream at offset %d: want NODE_START or NODE_END", w.offset)
		}
		return 0, fmt.Errorf("error reading stream op at offset %d: %v", w.offset, err)
	}
	if b != NODE_START && b != NODE_END {
		return 0, fmt.Errorf("expected NODE_START or NODE_END, got %x at offset %d", b, w.offset-1)
	}
	return b, nil
}

// ExpectNodeStart consumes the next stream byte and fails unless it opens a
// node. ctx names the caller for the error message.
func (w *Walker) ExpectNodeStart(ctx string) error {
	b, err := w.readRaw()
	if err != nil {
		return fmt.Errorf("%s: error reading byte at offset %d: %v", ctx, w.offset, err)
	}
	if b != NODE_START {
		return fmt.Errorf("%s: expected start of node: got %x, want %x at offset %d", ctx, b, NODE_START, w.offset-1)
	}
	return nil
}

// BeginNode reads the type tag of a node whose NODE_START has already been
// consumed, and returns a PropReader over the node's payload.
func (w *Walker) BeginNode() (uint8, *PropReader, error) {
	p := &PropReader{w: w}
	b, delim, err := p.Next()
	if err != nil {
		return 0, nil, fmt.Errorf("error reading node type: %v", err)
	}
	if delim != 0 {
		return 0, nil, fmt.Errorf("expected node type, got delimiter %x at offset %d", delim, w.offset-1)
	}
	return b, p, nil
}

// SkipSubtree discards the remainder of a node whose type tag has already
// been read, including all of its descendants. The node's closing NODE_END
// is consumed; the stream is left positioned at the next sibling boundary.
//
// This is what keeps a reader forward compatible: richer files may carry
// node types we have never heard of, and the only safe reaction is to walk
// past the whole subtree. Nesting depth is tracked with a counter rather
// than the call stack, so arbitrarily deep subtrees cost no memory.
func (w *Walker) SkipSubtree(p *PropReader) error {
	depth := 0 // open descendants below the node being skipped
	cur := p
	for {
		delim, err := cur.Drain()
		if err != nil {
			return err
		}
		if delim == NODE_START {
			depth++
			if _, cur, err = w.BeginNode(); err != nil {
				return fmt.Errorf("error skipping child node: %v", err)
			}
			continue
		}
		// The current node closed; walk up until a sibling opens or the
		// target node itself is closed.
		for {
			if depth == 0 {
				return nil
			}
			op, err := w.NextOp()
			if err != nil {
				return err
			}
			if op == NODE_START {
				if _, cur, err = w.BeginNode(); err != nil {
					return fmt.Errorf("error skipping sibling node: %v", err)
				}
				break
			}
			depth--
		}
	}
}

// PropReader presents the logical-byte view over one node's payload,
// unescaping transparently. It implements io.Reader so that binary.Read can
// decode fixed-layout fields straight off the node; the payload-terminating
// delimiter surfaces as io.EOF, which binary.Read turns into
// io.ErrUnexpectedEOF mid-field. Both signal corruption to the caller.
type PropReader struct {
	w     *Walker
	delim uint8 // NODE_START or NODE_END once the payload has ended; 0 while inside it
}

// Next returns the next logical payload byte, or the delimiter that ended
// the payload. delim is zero while payload bytes remain; once it is
// NODE_START or NODE_END the returned byte is meaningless. This is the
// primitive every attribute loop polls.
func (p *PropReader) Next() (b byte, delim uint8, err error) {
	if p.delim != 0 {
		return 0, p.delim, nil
	}
	b, err = p.w.readRaw()
	if err != nil {
		if err == io.EOF {
			return 0, 0, fmt.Errorf("abrupt end of stream inside node payload at offset %d", p.w.offset)
		}
		return 0, 0, err
	}
	switch b {
	case NODE_START, NODE_END:
		p.delim = b
		return 0, b, nil
	case ESCAPE_CHAR:
		b, err = p.w.readRaw()
		if err != nil {
			if err == io.EOF {
				return 0, 0, fmt.Errorf("abrupt end of stream after escape at offset %d", p.w.offset)
			}
			return 0, 0, err
		}
		return b, 0, nil
	default:
		return b, 0, nil
	}
}

// Read implements io.Reader over the logical payload bytes. Returns io.EOF
// once the payload's delimiter has been reached.
func (p *PropReader) Read(buf []byte) (int, error) {
	for i := range buf {
		b, delim, err := p.Next()
		if err != nil {
			return i, err
		}
		if delim != 0 {
			if i == 0 {
				return 0, io.EOF
			}
			return i, io.EOF
		}
		buf[i] = b
	}
	return len(buf), nil
}

// ReadFull reads exactly len(buf) logical bytes, failing if the payload ends
// early. An early delimiter is corruption: whatever declared the field said
// there were more bytes.
func (p *PropReader) ReadFull(buf []byte) error {
	if n, err := io.ReadFull(p, buf); err != nil {
		return fmt.Errorf("unexpected end of node payload at offset %d: got %d of %d bytes: %v", p.w.offset, n, len(buf), err)
	}
	return nil
}

// Drain skips the rest of the payload and returns the delimiter that ended
// it. Used when a node's type is known but its payload is not wanted.
func (p *PropReader) Drain() (uint8, error) {
	for {
		_, delim, err := p.Next()
		if err != nil {
			return 0, err
		}
		if delim != 0 {
			return delim, nil
		}
	}
}

// Delim returns the delimiter that ended the payload, or zero while payload
// bytes may remain.
func (p *PropReader) Delim() uint8 {
	return p.delim
}
