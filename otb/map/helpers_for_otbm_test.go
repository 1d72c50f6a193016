package otbm

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"badc0de.net/pkg/go-otbm/otb"
	"badc0de.net/pkg/go-otbm/things"
)

// loadThingsForTest builds a small item type table covering the decoding
// branches: ground, plain, stackable, container-ish, fluid, door-ish, splash.
func loadThingsForTest(t *testing.T) *things.Things {
	return things.New([]things.ItemType{
		{ServerID: 100, ClientID: 200, Ground: true},
		{ServerID: 101, ClientID: 201},
		{ServerID: 102, ClientID: 202, Stackable: true},
		{ServerID: 103, ClientID: 203},
		{ServerID: 104, ClientID: 204, FluidContainer: true},
		{ServerID: 105, ClientID: 205},
		{ServerID: 106, ClientID: 206, Splash: true},
	})
}

func mustDecodeHex(t *testing.T, blob string) []byte {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\t':
			return -1
		}
		return r
	}, blob)
	b, err := hex.DecodeString(clean)
	if err != nil {
		t.Fatalf("bad hex blob: %v", err)
	}
	return b
}

func encodeForTest(t *testing.T, m *Map, th *things.Things, opts SaveOptions) []byte {
	var buf bytes.Buffer
	if err := Save(&buf, m, th, opts); err != nil {
		t.Fatalf("failed to save map: %v", err)
	}
	return buf.Bytes()
}

func loadForTest(t *testing.T, blob []byte, th *things.Things, opts Options) (*Map, *LoadReport) {
	m, rep, err := Load(bytes.NewReader(blob), th, opts)
	if err != nil {
		t.Fatalf("failed to load map: %v", err)
	}
	return m, rep
}

func warningCount(rep *LoadReport, code WarningCode) int {
	n := 0
	for _, w := range rep.Warnings {
		if w.Code == code {
			n++
		}
	}
	return n
}

// streamBuilder assembles OTBM byte streams for decoder tests without going
// through Save, so malformed and foreign shapes can be produced too. Write
// errors cannot happen against the in-memory buffer and are ignored.
type streamBuilder struct {
	buf bytes.Buffer
	w   *otb.Writer
}

func newStream() *streamBuilder {
	b := &streamBuilder{}
	b.w = otb.NewWriter(&b.buf)
	b.w.WriteMagic(Magic)
	return b
}

// root opens the root node with a version/width/height header.
func (b *streamBuilder) root(version uint32, width, height uint16) *streamBuilder {
	b.begin(OTBM_ROOTV1)
	b.w.WriteU32(version)
	b.w.WriteU16(width)
	b.w.WriteU16(height)
	return b
}

func (b *streamBuilder) begin(nt MapNodeType) *streamBuilder {
	b.w.BeginNode(uint8(nt))
	return b
}

func (b *streamBuilder) end() *streamBuilder {
	b.w.EndNode()
	return b
}

func (b *streamBuilder) u8(v uint8) *streamBuilder {
	b.w.WriteU8(v)
	return b
}

func (b *streamBuilder) u16(v uint16) *streamBuilder {
	b.w.WriteU16(v)
	return b
}

func (b *streamBuilder) u32(v uint32) *streamBuilder {
	b.w.WriteU32(v)
	return b
}

func (b *streamBuilder) str(s string) *streamBuilder {
	b.w.WriteString(s)
	return b
}

func (b *streamBuilder) attr(a ItemAttribute) *streamBuilder {
	b.w.WriteU8(uint8(a))
	return b
}

// tileArea opens a MAP_DATA-level tile area at the given base coordinate.
func (b *streamBuilder) tileArea(x, y uint16, floor uint8) *streamBuilder {
	return b.begin(OTBM_TILE_AREA).u16(x).u16(y).u8(floor)
}

// tile opens a tile node at the given in-area offset.
func (b *streamBuilder) tile(offX, offY uint8) *streamBuilder {
	return b.begin(OTBM_TILE).u8(offX).u8(offY)
}

func (b *streamBuilder) bytes() []byte {
	b.w.Flush()
	return b.buf.Bytes()
}
