package otbm

import (
	"bytes"
	"os"
	"testing"

	"badc0de.net/pkg/flagutil/v1"
	"badc0de.net/pkg/go-otbm/ttesting"

	"github.com/pkg/errors"
)

func TestMain(m *testing.M) {
	// make -args -v=2 -logtostderr work.
	flagutil.Parse()
	os.Exit(m.Run())
}

// TestLoadLiteralScenario pins the byte-level layout: a version 2 map of one
// tile at (0,0,7) whose ground is the compact in-payload item id 100.
func TestLoadLiteralScenario(t *testing.T) {
	blob := mustDecodeHex(t, `
		4f54424d
		fe 01 02000000 0100 0100
		fe 02 01 0000
		fe 04 0000 0000 07
		fe 05 00 00 09 6400
		ff ff ff ff`)
	th := loadThingsForTest(t)
	m, rep := loadForTest(t, blob, th, Options{})

	ttesting.AssertEqualUint32(t, "version", m.Header.Version, 2)
	ttesting.AssertEqualUint16(t, "width", m.Header.Width, 1)
	ttesting.AssertEqualUint16(t, "height", m.Header.Height, 1)
	ttesting.AssertEqualInt(t, "descriptions", len(m.Header.Descriptions), 1)
	ttesting.AssertEqualInt(t, "tile count", m.TileCount(), 1)
	ttesting.AssertEqualInt(t, "report tiles", rep.Tiles, 1)
	ttesting.AssertEqualInt(t, "report items", rep.Items, 1)
	ttesting.AssertEqualInt(t, "warnings", len(rep.Warnings), 0)

	tile := m.GetTile(0, 0, 7)
	if tile == nil {
		t.Fatalf("no tile at (0,0,7)")
	}
	if tile.Ground == nil {
		t.Fatalf("tile has no ground")
	}
	ttesting.AssertEqualUint16(t, "ground id", tile.Ground.ID, 100)
	ttesting.AssertEqualUint16(t, "ground client id", tile.Ground.ClientID, 200)
	ttesting.AssertEqualInt(t, "stack size", len(tile.Items), 0)
}

func TestLoadAcceptsZeroMagic(t *testing.T) {
	blob := mustDecodeHex(t, `
		00000000
		fe 01 02000000 0100 0100
		fe 02
		ff ff`)
	th := loadThingsForTest(t)
	m, _ := loadForTest(t, blob, th, Options{})
	ttesting.AssertEqualInt(t, "tile count", m.TileCount(), 0)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	blob := mustDecodeHex(t, `4f54424e fe 01 02000000 0100 0100 fe 02 ff ff`)
	th := loadThingsForTest(t)
	if _, _, err := Load(bytes.NewReader(blob), th, Options{}); err == nil {
		t.Errorf("got nil error for bad magic; want FormatError")
	}
}

func TestLoadTruncatedStream(t *testing.T) {
	blob := mustDecodeHex(t, `
		4f54424d
		fe 01 02000000 0100 0100
		fe 02 01 0000
		fe 04 0000 0000 07
		fe 05 00 00 09 6400
		ff ff ff ff`)
	th := loadThingsForTest(t)
	_, _, err := Load(bytes.NewReader(blob[:len(blob)-3]), th, Options{})
	if err == nil {
		t.Fatalf("got nil error for truncated stream; want FormatError")
	}
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %T (%v); want *FormatError", err, err)
	}
	if ferr.Offset == 0 {
		t.Errorf("got offset 0 in %v; want the failure offset", ferr)
	}
}

// TestRoundTripStableEncoding saves a map touching most features, loads it
// back, saves again and requires the two encodings to be byte-identical.
func TestRoundTripStableEncoding(t *testing.T) {
	th := loadThingsForTest(t)
	m1 := NewMap(MapHeader{
		Version: 2, Width: 512, Height: 512,
		ItemsVerMajor: 3, ItemsVerMinor: 57,
		Descriptions:     []string{"test map"},
		SpawnMonsterFile: "test-spawn.xml",
		HouseFile:        "test-house.xml",
		SpawnNpcFile:     "test-npc.xml",
		ZoneFile:         "test-zone.xml",
	})

	m1.SetTile(&Tile{
		Pos:    Position{X: 10, Y: 10, Floor: 7},
		Ground: &Item{ID: 100},
		Items: []*Item{
			{ID: 101, ActionID: 1000, UniqueID: 2000},
			{ID: 102, Count: 3, Subtype: 3},
		},
	})
	m1.SetTile(&Tile{
		Pos:     Position{X: 270, Y: 10, Floor: 7},
		HouseID: 42,
		Flags:   1,
		Ground:  &Item{ID: 100},
		Items: []*Item{
			{ID: 105, HouseDoorID: 2},
			{ID: 104, Count: 7, Subtype: 7},
		},
	})
	m1.SetTile(&Tile{
		Pos:    Position{X: 10, Y: 12, Floor: 7},
		Ground: &Item{ID: 100},
		Items: []*Item{
			{ID: 103, Contents: []*Item{
				{ID: 102, Count: 1, Subtype: 1},
				{ID: 103, Contents: []*Item{{ID: 101}}},
			}},
			{ID: 101, Text: "scribbles", Description: "a worn note"},
			{ID: 101, TeleDest: &Position{X: 5, Y: 6, Floor: 7}},
			{ID: 101, Attributes: []Attribute{
				{Key: "quality", Kind: ATTR_KIND_INT, Value: int32(3)},
				{Key: "label", Kind: ATTR_KIND_STRING, Value: "crate"},
				{Key: "wet", Kind: ATTR_KIND_BOOL, Value: true},
				{Key: "ratio", Kind: ATTR_KIND_FLOAT, Value: float32(0.5)},
				{Key: "weight", Kind: ATTR_KIND_DOUBLE, Value: float64(1.25)},
				{Key: "marker", Kind: ATTR_KIND_NONE},
			}},
		},
	})
	m1.SetTile(&Tile{
		Pos:    Position{X: 10, Y: 13, Floor: 7},
		Ground: &Item{ID: 100},
		Zones:  []uint16{1, 2, 3},
	})
	m1.Towns = []Town{{ID: 1, Name: "Thais", TemplePos: Position{X: 100, Y: 100, Floor: 7}}}
	m1.Waypoints = []Waypoint{{Name: "bridge", Pos: Position{X: 50, Y: 50, Floor: 7}}}

	blob1 := encodeForTest(t, m1, th, SaveOptions{})
	m2, rep := loadForTest(t, blob1, th, Options{})
	ttesting.AssertEqualInt(t, "warnings", len(rep.Warnings), 0)
	blob2 := encodeForTest(t, m2, th, SaveOptions{})
	if !bytes.Equal(blob1, blob2) {
		t.Fatalf("re-encoding is not stable: got %d bytes, want %d bytes equal", len(blob2), len(blob1))
	}

	ttesting.AssertEqualInt(t, "tile count", m2.TileCount(), 4)
	ttesting.AssertEqualUint32(t, "items major", m2.Header.ItemsVerMajor, 3)
	ttesting.AssertEqualUint32(t, "items minor", m2.Header.ItemsVerMinor, 57)
	ttesting.AssertEqualString(t, "spawn file", m2.Header.SpawnMonsterFile, "test-spawn.xml")
	ttesting.AssertEqualString(t, "zone file", m2.Header.ZoneFile, "test-zone.xml")

	house := m2.GetTile(270, 10, 7)
	if house == nil {
		t.Fatalf("no house tile at (270,10,7)")
	}
	ttesting.AssertEqualUint32(t, "house id", house.HouseID, 42)
	ttesting.AssertEqualUint32(t, "tile flags", house.Flags, 1)

	crate := m2.GetTile(10, 12, 7)
	if crate == nil {
		t.Fatalf("no tile at (10,12,7)")
	}
	ttesting.AssertEqualInt(t, "crate stack", len(crate.Items), 4)
	ttesting.AssertEqualInt(t, "container contents", len(crate.Items[0].Contents), 2)
	ttesting.AssertEqualInt(t, "nested contents", len(crate.Items[0].Contents[1].Contents), 1)
	ttesting.AssertEqualString(t, "text", crate.Items[1].Text, "scribbles")
	if crate.Items[2].TeleDest == nil || *crate.Items[2].TeleDest != (Position{X: 5, Y: 6, Floor: 7}) {
		t.Errorf("got teleport destination %v; want (5,6,7)", crate.Items[2].TeleDest)
	}
	ttesting.AssertEqualInt(t, "attribute map entries", len(crate.Items[3].Attributes), 6)

	zoned := m2.GetTile(10, 13, 7)
	if zoned == nil {
		t.Fatalf("no tile at (10,13,7)")
	}
	ttesting.AssertEqualInt(t, "zones", len(zoned.Zones), 3)

	ttesting.AssertEqualInt(t, "towns", len(m2.Towns), 1)
	ttesting.AssertEqualString(t, "town name", m2.Towns[0].Name, "Thais")
	ttesting.AssertEqualInt(t, "waypoints", len(m2.Waypoints), 1)
	ttesting.AssertEqualString(t, "waypoint name", m2.Waypoints[0].Name, "bridge")
}

// TestTextKeepsAllByteValues pushes every byte value through a string field,
// covering the escape alphabet inside a length-prefixed payload.
func TestTextKeepsAllByteValues(t *testing.T) {
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}
	th := loadThingsForTest(t)
	m1 := NewMap(MapHeader{Version: 2, Width: 8, Height: 8})
	m1.SetTile(&Tile{
		Pos:    Position{X: 1, Y: 1, Floor: 7},
		Ground: &Item{ID: 100},
		Items:  []*Item{{ID: 101, Text: string(raw)}},
	})
	blob := encodeForTest(t, m1, th, SaveOptions{})
	m2, _ := loadForTest(t, blob, th, Options{})
	got := m2.GetTile(1, 1, 7).Items[0].Text
	if got != string(raw) {
		t.Errorf("got %x; want all 256 byte values in order", got)
	}
}

func TestUnsupportedVersionGating(t *testing.T) {
	blob := newStream().root(7, 1, 1).begin(OTBM_MAP_DATA).end().end().bytes()
	th := loadThingsForTest(t)

	if _, _, err := Load(bytes.NewReader(blob), th, Options{}); err == nil {
		t.Errorf("got nil error for version 7; want FormatError")
	}

	m, _ := loadForTest(t, blob, th, Options{AllowUnsupportedVersions: true})
	ttesting.AssertEqualUint32(t, "version", m.Header.Version, 7)
}

func TestClientIDSpaceResolution(t *testing.T) {
	// Version 5 payload ids are client ids: 200 must resolve to server 100.
	blob := newStream().root(5, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(200).end().
		end().
		end().
		end().bytes()
	th := loadThingsForTest(t)
	m, rep := loadForTest(t, blob, th, Options{})

	tile := m.GetTile(0, 0, 7)
	if tile == nil || tile.Ground == nil {
		t.Fatalf("no ground at (0,0,7)")
	}
	ttesting.AssertEqualUint16(t, "server id", tile.Ground.ID, 100)
	ttesting.AssertEqualUint16(t, "client id", tile.Ground.ClientID, 200)
	ttesting.AssertEqualInt(t, "warnings", len(rep.Warnings), 0)

	// Re-encoding translates back into the client id space.
	blob2 := encodeForTest(t, m, th, SaveOptions{})
	if !bytes.Equal(blob, blob2) {
		t.Errorf("got %x; want the original client-id-space bytes %x", blob2, blob)
	}
}

func TestMisTaggedIDSpaceCounters(t *testing.T) {
	th := loadThingsForTest(t)

	// 100 is a server id; in a version 5 file it fails client-id resolution.
	blob := newStream().root(5, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(100).end().
		end().
		end().
		end().bytes()
	_, rep := loadForTest(t, blob, th, Options{})
	ttesting.AssertEqualInt(t, "server-like ids", rep.ServerLikeIDs, 1)
	ttesting.AssertEqualInt(t, "unknown ids", rep.UnknownItemIDs, 1)
	ttesting.AssertEqualInt(t, "unmapped id warnings", warningCount(rep, WARN_UNMAPPED_ID), 1)

	// 200 is a client id; in a version 2 file it fails server-id resolution.
	blob = newStream().root(2, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(200).end().
		end().
		end().
		end().bytes()
	_, rep = loadForTest(t, blob, th, Options{})
	ttesting.AssertEqualInt(t, "client-like ids", rep.ClientLikeIDs, 1)
}

func TestMissingHouseFileWarning(t *testing.T) {
	blob := newStream().root(2, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		begin(OTBM_HOUSETILE).u8(0).u8(0).u32(17).attr(OTBM_ATTR_ITEM).u16(100).end().
		end().
		end().
		end().bytes()
	th := loadThingsForTest(t)
	m, rep := loadForTest(t, blob, th, Options{})

	ttesting.AssertEqualUint32(t, "house id", m.GetTile(0, 0, 7).HouseID, 17)
	ttesting.AssertEqualInt(t, "missing ext file warnings", warningCount(rep, WARN_MISSING_EXT_FILE), 1)
}

func TestTileStacking(t *testing.T) {
	blob := newStream().root(2, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(100).
		begin(OTBM_ITEM).u16(101).end().
		begin(OTBM_ITEM).u16(100).end(). // ground type, but the slot is taken
		begin(OTBM_ITEM).u16(102).end().
		end().
		end().
		end().
		end().bytes()
	th := loadThingsForTest(t)
	m, _ := loadForTest(t, blob, th, Options{})

	tile := m.GetTile(0, 0, 7)
	if tile == nil || tile.Ground == nil {
		t.Fatalf("no ground at (0,0,7)")
	}
	ttesting.AssertEqualUint16(t, "ground id", tile.Ground.ID, 100)
	ttesting.AssertEqualInt(t, "stack size", len(tile.Items), 3)
	ttesting.AssertEqualUint16(t, "stack 0", tile.Items[0].ID, 101)
	ttesting.AssertEqualUint16(t, "stack 1", tile.Items[1].ID, 100)
	ttesting.AssertEqualUint16(t, "stack 2", tile.Items[2].ID, 102)

	first, err := tile.GetItem(0)
	if err != nil || first != tile.Ground {
		t.Errorf("GetItem(0) = %v, %v; want the ground item", first, err)
	}
	if _, err := tile.GetItem(4); err != ItemNotFound {
		t.Errorf("GetItem(4) error = %v; want ItemNotFound", err)
	}
}

func TestUnknownNodeSkipped(t *testing.T) {
	blob := newStream().root(2, 1, 1).
		begin(OTBM_MAP_DATA).
		begin(MapNodeType(0x99)).u32(0xDEADBEEF).
		begin(MapNodeType(0x42)).u8(1).end().
		end().
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(100).end().
		end().
		end().
		end().bytes()
	th := loadThingsForTest(t)
	m, rep := loadForTest(t, blob, th, Options{})

	ttesting.AssertEqualInt(t, "tile count", m.TileCount(), 1)
	ttesting.AssertEqualInt(t, "unknown node warnings", warningCount(rep, WARN_UNKNOWN_NODE), 1)
}

func TestDuplicateTileLastWriteWins(t *testing.T) {
	blob := newStream().root(2, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(100).end().
		tile(0, 0).
		begin(OTBM_ITEM).u16(101).end().
		end().
		end().
		end().
		end().bytes()
	th := loadThingsForTest(t)
	m, _ := loadForTest(t, blob, th, Options{})

	ttesting.AssertEqualInt(t, "tile count", m.TileCount(), 1)
	tile := m.GetTile(0, 0, 7)
	if tile.Ground != nil {
		t.Errorf("got ground %v from the replaced tile; want nil", tile.Ground)
	}
	ttesting.AssertEqualInt(t, "stack size", len(tile.Items), 1)
	ttesting.AssertEqualUint16(t, "stack 0", tile.Items[0].ID, 101)
}

// TestVersion1SubtypeByte covers the version 1 layout where subtyped items
// carry a bare subtype byte right after the id, outside the attribute loop.
func TestVersion1SubtypeByte(t *testing.T) {
	th := loadThingsForTest(t)
	blob := newStream().root(1, 1, 1).
		begin(OTBM_MAP_DATA).
		tileArea(0, 0, 7).
		tile(0, 0).attr(OTBM_ATTR_ITEM).u16(100).
		begin(OTBM_ITEM).u16(102).u8(5).end().
		end().
		end().
		end().
		end().bytes()
	m, _ := loadForTest(t, blob, th, Options{})

	item := m.GetTile(0, 0, 7).Items[0]
	ttesting.AssertEqualUint16(t, "subtype", item.Subtype, 5)
	ttesting.AssertEqualInt(t, "count", int(item.Count), 5)

	// The byte must come back out in the same place.
	blob2 := encodeForTest(t, m, th, SaveOptions{})
	if !bytes.Equal(blob, blob2) {
		t.Errorf("got %x; want the original version 1 bytes %x", blob2, blob)
	}
}

// TestSaveRejectsOversizedCollections checks that values too large for their
// u16 wire prefix fail the save instead of truncating into a corrupt stream.
func TestSaveRejectsOversizedCollections(t *testing.T) {
	th := loadThingsForTest(t)
	var buf bytes.Buffer

	for _, tc := range []struct {
		name string
		tile *Tile
	}{
		{"text", &Tile{
			Pos:   Position{X: 0, Y: 0, Floor: 7},
			Items: []*Item{{ID: 101, Text: string(make([]byte, 0x10000))}},
		}},
		{"attribute map", &Tile{
			Pos:   Position{X: 0, Y: 0, Floor: 7},
			Items: []*Item{{ID: 101, Attributes: make([]Attribute, 0x10000)}},
		}},
		{"zones", &Tile{
			Pos:    Position{X: 0, Y: 0, Floor: 7},
			Ground: &Item{ID: 100},
			Zones:  make([]uint16, 0x10000),
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMap(MapHeader{Version: 2, Width: 8, Height: 8})
			m.SetTile(tc.tile)
			buf.Reset()
			if err := Save(&buf, m, th, SaveOptions{}); err == nil {
				t.Errorf("got nil error saving oversized %s; want u16 overflow error", tc.name)
			}
		})
	}
}

func TestGuardRejectsZeroDimensions(t *testing.T) {
	blob := newStream().root(2, 0, 1).begin(OTBM_MAP_DATA).end().end().bytes()
	th := loadThingsForTest(t)
	_, _, err := Load(bytes.NewReader(blob), th, Options{})
	var rerr *ResourceLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %T (%v); want *ResourceLimitError", err, err)
	}
}

func TestGuardStopsTileFlood(t *testing.T) {
	th := loadThingsForTest(t)
	m := NewMap(MapHeader{Version: 2, Width: 8, Height: 8})
	for x := uint16(0); x < 3; x++ {
		m.SetTile(&Tile{Pos: Position{X: x, Y: 0, Floor: 7}, Ground: &Item{ID: 100}})
	}
	blob := encodeForTest(t, m, th, SaveOptions{})

	_, rep, err := Load(bytes.NewReader(blob), th, Options{
		Guard: GuardLimits{MaxTiles: 2, SampleEvery: 1},
	})
	var rerr *ResourceLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %T (%v); want *ResourceLimitError", err, err)
	}
	if rerr.Limit != "tiles" {
		t.Errorf("got limit %q; want %q", rerr.Limit, "tiles")
	}
	// The failure report still carries everything counted up to the stop.
	ttesting.AssertEqualInt(t, "report tiles", rep.Tiles, 3)
	ttesting.AssertEqualInt(t, "report items", rep.Items, 2)
}
