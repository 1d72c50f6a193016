// Package otbm implements a streaming OTBM map file codec: a loader that
// assembles an in-memory map plus a diagnostics report, and a saver that
// performs the mirror transform.
//
// The codec is a pure byte-stream transform: single-threaded, blocking,
// no internal retries. A fully decoded Map and the things tables it was
// decoded against are immutable afterwards and may be shared freely.
package otbm

import (
	"fmt"
	"sort"
)

// pos packs a tile coordinate into a single comparable, sortable key.
type pos uint64

func (l pos) X() uint16 {
	return uint16(l & 0xFFFF)
}

func (l pos) Y() uint16 {
	return uint16((l >> 16) & 0xFFFF)
}

func (l pos) Floor() uint8 {
	return uint8((l >> 32) & 0xFF)
}

func (l pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", l.X(), l.Y(), l.Floor())
}

func posFromCoord(x, y uint16, floor uint8) pos {
	return pos((uint64(floor) << 32) | (uint64(y) << 16) | uint64(x))
}

// Position is an absolute tile coordinate.
type Position struct {
	X, Y  uint16
	Floor uint8
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Floor)
}

func (p Position) key() pos {
	return posFromCoord(p.X, p.Y, p.Floor)
}

// MapHeader is the immutable header snapshot of a map: format version,
// dimensions, description lines and external side-file names. The side files
// are referenced by name only; their formats are not this codec's concern.
type MapHeader struct {
	Version       uint32
	Width, Height uint16

	// Optional items.otb version trailer carried by some root nodes. Both
	// zero when absent; re-emitted only when set.
	ItemsVerMajor, ItemsVerMinor uint32

	Descriptions []string

	SpawnMonsterFile string
	HouseFile        string
	SpawnNpcFile     string
	ZoneFile         string
}

// Attribute is one entry of an item's open-ended attribute map. Entries the
// codec does not recognize are preserved verbatim.
type Attribute struct {
	Key  string
	Kind AttributeKind

	// Value holds string, int32, float32, bool or float64 per Kind; nil for
	// ATTR_KIND_NONE.
	Value interface{}
}

// Item is one decoded map item. ID is always the persisted logical
// (server-side) ID regardless of the on-disk id-space of the source file.
type Item struct {
	ID uint16

	// ClientID is the render-side ID, populated opportunistically from the
	// ID map. Never persisted.
	ClientID uint16

	// RawUnknownID remembers the original on-disk ID of a placeholder item
	// whose ID could not be resolved. Never persisted.
	RawUnknownID uint16

	// Count and Subtype are two historical names for one concept; for
	// stackable, fluid container and splash types the codec cross-fills
	// them. RuneCharges and Charges alias the subtype slot under their own
	// attribute tags.
	Count       uint8
	Subtype     uint16
	RuneCharges uint8
	Charges     uint16

	ActionID    uint16
	UniqueID    uint16
	Text        string
	Description string
	TeleDest    *Position
	DepotID     uint16
	HouseDoorID uint8

	// Attributes is the open-ended attribute map, order preserved.
	Attributes []Attribute

	// Contents holds a container's child items, depth-first ownership, no
	// cycles by construction.
	Contents []*Item
}

func (i *Item) String() string {
	if i.RawUnknownID != 0 {
		return fmt.Sprintf("<item placeholder for unknown id %d>", i.RawUnknownID)
	}
	return fmt.Sprintf("<item %d>", i.ID)
}

// ItemNotFound is returned by Tile.GetItem for an out-of-range index.
var ItemNotFound = fmt.Errorf("item not found")

// Tile is one map square. Ground lives in its own slot and never appears in
// Items; Items keeps the original bottom-to-top order.
type Tile struct {
	Pos     Position
	HouseID uint32
	Flags   uint32
	Ground  *Item
	Items   []*Item
	Zones   []uint16
}

func (t *Tile) String() string {
	return fmt.Sprintf("<tile at %s>", t.Pos)
}

// GetItem returns the idx-th item of the combined view: ground first, then
// the item stack in original order.
func (t *Tile) GetItem(idx int) (*Item, error) {
	if t.Ground != nil {
		if idx == 0 {
			return t.Ground, nil
		}
		idx--
	}
	if idx >= 0 && idx < len(t.Items) {
		return t.Items[idx], nil
	}
	return nil, ItemNotFound
}

// addItem classifies a decoded item: it becomes ground only if the type
// database marks the type as ground and no ground is set yet; everything
// else is appended to the stack.
func (t *Tile) addItem(item *Item, ground bool) {
	if ground && t.Ground == nil {
		t.Ground = item
		return
	}
	t.Items = append(t.Items, item)
}

// Town is a named town with a temple position.
type Town struct {
	ID        uint32
	Name      string
	TemplePos Position
}

// Waypoint is a named position.
type Waypoint struct {
	Name string
	Pos  Position
}

// Map is a fully decoded map. All entities are constructed during a single
// decode pass (or fully materialized before a single encode pass); there are
// no partial or lazy objects.
type Map struct {
	Header    MapHeader
	Towns     []Town
	Waypoints []Waypoint

	tiles map[pos]*Tile
}

// NewMap returns an empty map with the given header.
func NewMap(header MapHeader) *Map {
	return &Map{
		Header: header,
		tiles:  map[pos]*Tile{},
	}
}

func (m *Map) String() string {
	return fmt.Sprintf("<map %dx%d v%d with %d tiles>", m.Header.Width, m.Header.Height, m.Header.Version, len(m.tiles))
}

// GetTile returns the tile at the given coordinate, or nil if none exists.
func (m *Map) GetTile(x, y uint16, floor uint8) *Tile {
	return m.tiles[posFromCoord(x, y, floor)]
}

// SetTile stores a tile under its own position, replacing any existing tile
// there. Duplicate positions resolve last-write-wins; there is no merge.
func (m *Map) SetTile(t *Tile) {
	m.tiles[t.Pos.key()] = t
}

// TileCount returns the number of tiles.
func (m *Map) TileCount() int {
	return len(m.tiles)
}

// Tiles returns all tiles ordered by (floor, y, x). The order is what the
// saver emits, so a save is deterministic for a given map.
func (m *Map) Tiles() []*Tile {
	keys := make([]pos, 0, len(m.tiles))
	for k := range m.tiles {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]*Tile, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.tiles[k])
	}
	return out
}
