package otbm

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"badc0de.net/pkg/go-otbm/otb"
	"badc0de.net/pkg/go-otbm/things"

	"github.com/golang/glog"
)

type saver struct {
	w    *otb.Writer
	m    *Map
	th   *things.Things
	opts SaveOptions
}

// Save encodes the map back into OTBM framing. The output is deterministic
// for a given map: tiles are emitted grouped into 256x256 areas, areas and
// tiles ordered by (floor, y, x).
func Save(w io.Writer, m *Map, th *things.Things, opts SaveOptions) error {
	s := &saver{w: otb.NewWriter(w), m: m, th: th, opts: opts}
	if err := s.save(); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *saver) clientIDSpace() bool {
	return s.m.Header.Version >= clientIDVersion
}

func (s *saver) save() error {
	if err := s.w.WriteMagic(Magic); err != nil {
		return fmt.Errorf("error writing magic: %v", err)
	}
	if err := s.w.BeginNode(uint8(OTBM_ROOTV1)); err != nil {
		return err
	}
	if err := binary.Write(s.w, binary.LittleEndian, struct {
		Ver           uint32
		Width, Height uint16
	}{s.m.Header.Version, s.m.Header.Width, s.m.Header.Height}); err != nil {
		return fmt.Errorf("error writing root header: %v", err)
	}
	if s.m.Header.ItemsVerMajor != 0 || s.m.Header.ItemsVerMinor != 0 {
		if err := binary.Write(s.w, binary.LittleEndian, struct {
			Major, Minor uint32
		}{s.m.Header.ItemsVerMajor, s.m.Header.ItemsVerMinor}); err != nil {
			return fmt.Errorf("error writing items version trailer: %v", err)
		}
	}

	if err := s.writeMapData(); err != nil {
		return err
	}

	return s.w.EndNode() // root
}

func (s *saver) writeMapData() error {
	if err := s.w.BeginNode(uint8(OTBM_MAP_DATA)); err != nil {
		return err
	}
	if err := s.writeMapDataAttrs(); err != nil {
		return err
	}
	if err := s.writeTileAreas(); err != nil {
		return err
	}
	if err := s.writeTowns(); err != nil {
		return err
	}
	if err := s.writeWaypoints(); err != nil {
		return err
	}
	return s.w.EndNode()
}

func (s *saver) writeMapDataAttrs() error {
	for _, d := range s.m.Header.Descriptions {
		if err := s.writeStringAttr(OTBM_ATTR_DESCRIPTION, d); err != nil {
			return err
		}
	}
	ext := []struct {
		attr ItemAttribute
		name string
	}{
		{OTBM_ATTR_EXT_SPAWN_MONSTER_FILE, s.m.Header.SpawnMonsterFile},
		{OTBM_ATTR_EXT_HOUSE_FILE, s.m.Header.HouseFile},
		{OTBM_ATTR_EXT_SPAWN_NPC_FILE, s.m.Header.SpawnNpcFile},
		{OTBM_ATTR_EXT_ZONE_FILE, s.m.Header.ZoneFile},
	}
	for _, e := range ext {
		if e.name == "" {
			continue
		}
		if err := s.writeStringAttr(e.attr, e.name); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) writeStringAttr(attr ItemAttribute, v string) error {
	if err := s.w.WriteU8(uint8(attr)); err != nil {
		return err
	}
	if err := s.w.WriteString(v); err != nil {
		return fmt.Errorf("error writing %s attribute: %v", attr, err)
	}
	return nil
}

// writeTileAreas groups tiles into their 256x256 areas and emits both areas
// and tiles in (floor, y, x) order.
func (s *saver) writeTileAreas() error {
	areas := map[pos][]*Tile{}
	for _, t := range s.m.Tiles() {
		ak := posFromCoord(t.Pos.X&0xFF00, t.Pos.Y&0xFF00, t.Pos.Floor)
		areas[ak] = append(areas[ak], t)
	}
	keys := make([]pos, 0, len(areas))
	for k := range areas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, ak := range keys {
		if err := s.w.BeginNode(uint8(OTBM_TILE_AREA)); err != nil {
			return err
		}
		if err := binary.Write(s.w, binary.LittleEndian, struct {
			X, Y  uint16
			Floor uint8
		}{ak.X(), ak.Y(), ak.Floor()}); err != nil {
			return fmt.Errorf("error writing tile area base: %v", err)
		}
		for _, t := range areas[ak] {
			if err := s.writeTile(t); err != nil {
				return err
			}
		}
		if err := s.w.EndNode(); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) writeTile(t *Tile) error {
	nt := OTBM_TILE
	if t.HouseID != 0 {
		nt = OTBM_HOUSETILE
	}
	if err := s.w.BeginNode(uint8(nt)); err != nil {
		return err
	}
	if err := s.w.WriteU8(uint8(t.Pos.X & 0xFF)); err != nil {
		return err
	}
	if err := s.w.WriteU8(uint8(t.Pos.Y & 0xFF)); err != nil {
		return err
	}
	if nt == OTBM_HOUSETILE {
		if err := s.w.WriteU32(t.HouseID); err != nil {
			return err
		}
	}
	if t.Flags != 0 {
		if err := s.w.WriteU8(uint8(OTBM_ATTR_TILE_FLAGS)); err != nil {
			return err
		}
		if err := s.w.WriteU32(t.Flags); err != nil {
			return err
		}
	}

	groundAsNode := false
	if t.Ground != nil {
		if s.plainItem(t.Ground) {
			id, err := s.wireID(t.Ground)
			if err != nil {
				return err
			}
			if err := s.w.WriteU8(uint8(OTBM_ATTR_ITEM)); err != nil {
				return err
			}
			if err := s.w.WriteU16(id); err != nil {
				return err
			}
		} else {
			groundAsNode = true
		}
	}

	if groundAsNode {
		if err := s.writeItemNode(t.Ground); err != nil {
			return err
		}
	}
	for _, item := range t.Items {
		if err := s.writeItemNode(item); err != nil {
			return err
		}
	}
	if len(t.Zones) > 0 {
		if err := s.writeTileZones(t.Zones); err != nil {
			return err
		}
	}
	return s.w.EndNode()
}

// plainItem reports whether an item carries nothing beyond its id, making it
// eligible for the compact in-payload ground form.
func (s *saver) plainItem(i *Item) bool {
	return i.Count == 0 && i.Subtype == 0 && i.RuneCharges == 0 && i.Charges == 0 &&
		i.ActionID == 0 && i.UniqueID == 0 && i.Text == "" && i.Description == "" &&
		i.TeleDest == nil && i.DepotID == 0 && i.HouseDoorID == 0 &&
		len(i.Attributes) == 0 && len(i.Contents) == 0
}

// wireID performs the inverse id translation for the file's id-space.
func (s *saver) wireID(item *Item) (uint16, error) {
	if item.ID == 0 && item.RawUnknownID != 0 {
		// A placeholder keeps its original on-disk id, so re-encoding does
		// not destroy information the next tool might resolve.
		glog.V(1).Infof("otbm: re-emitting unresolved id %d for %v", item.RawUnknownID, item)
		return item.RawUnknownID, nil
	}
	if !s.clientIDSpace() {
		return item.ID, nil
	}
	if cid, ok := s.th.IDMap().ClientIDForServerID(item.ID); ok {
		return cid, nil
	}
	if s.opts.Policy == UNKNOWN_ITEM_ERROR {
		return 0, fmt.Errorf("otbm: server id %d has no client id mapping", item.ID)
	}
	glog.Warningf("otbm: server id %d has no client id mapping, emitting it raw", item.ID)
	return item.ID, nil
}

func (s *saver) writeItemNode(item *Item) error {
	id, err := s.wireID(item)
	if err != nil {
		return err
	}
	if err := s.w.BeginNode(uint8(OTBM_ITEM)); err != nil {
		return err
	}
	if err := s.w.WriteU16(id); err != nil {
		return err
	}

	// Version 1 moves the subtype of subtyped items out of the attribute
	// loop into a bare byte after the id.
	v1Subtype := false
	if s.m.Header.Version == 1 {
		if it := s.th.ItemTypeByServerID(item.ID); it != nil && it.Subtyped() {
			v1Subtype = true
			if err := s.w.WriteU8(uint8(item.Subtype)); err != nil {
				return err
			}
		}
	}

	if err := s.writeItemAttrs(item, v1Subtype); err != nil {
		return err
	}

	for _, sub := range item.Contents {
		if err := s.writeItemNode(sub); err != nil {
			return err
		}
	}
	return s.w.EndNode()
}

func (s *saver) writeItemAttrs(item *Item, v1Subtype bool) error {
	if item.Count != 0 && !v1Subtype {
		if err := s.w.WriteU8(uint8(OTBM_ATTR_COUNT)); err != nil {
			return err
		}
		if err := s.w.WriteU8(item.Count); err != nil {
			return err
		}
	}
	u16Attrs := []struct {
		attr ItemAttribute
		v    uint16
	}{
		{OTBM_ATTR_ACTION_ID, item.ActionID},
		{OTBM_ATTR_UNIQUE_ID, item.UniqueID},
		{OTBM_ATTR_DEPOT_ID, item.DepotID},
		{OTBM_ATTR_CHARGES, item.Charges},
	}
	for _, a := range u16Attrs {
		if a.v == 0 {
			continue
		}
		if err := s.w.WriteU8(uint8(a.attr)); err != nil {
			return err
		}
		if err := s.w.WriteU16(a.v); err != nil {
			return err
		}
	}
	if item.Text != "" {
		if err := s.writeStringAttr(OTBM_ATTR_TEXT, item.Text); err != nil {
			return err
		}
	}
	if item.Description != "" {
		if err := s.writeStringAttr(OTBM_ATTR_DESC, item.Description); err != nil {
			return err
		}
	}
	if item.TeleDest != nil {
		if err := s.w.WriteU8(uint8(OTBM_ATTR_TELE_DEST)); err != nil {
			return err
		}
		if err := s.writePosition(*item.TeleDest); err != nil {
			return err
		}
	}
	if item.RuneCharges != 0 {
		if err := s.w.WriteU8(uint8(OTBM_ATTR_RUNE_CHARGES)); err != nil {
			return err
		}
		if err := s.w.WriteU8(item.RuneCharges); err != nil {
			return err
		}
	}
	if item.HouseDoorID != 0 {
		if err := s.w.WriteU8(uint8(OTBM_ATTR_HOUSEDOORID)); err != nil {
			return err
		}
		if err := s.w.WriteU8(item.HouseDoorID); err != nil {
			return err
		}
	}
	if len(item.Attributes) > 0 {
		if err := s.writeAttributeMap(item.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) writeAttributeMap(attrs []Attribute) error {
	if len(attrs) > 0xFFFF {
		return fmt.Errorf("otbm: attribute map with %d entries does not fit a u16 count", len(attrs))
	}
	if err := s.w.WriteU8(uint8(OTBM_ATTR_ATTRIBUTE_MAP)); err != nil {
		return err
	}
	if err := s.w.WriteU16(uint16(len(attrs))); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := s.w.WriteString(a.Key); err != nil {
			return err
		}
		if err := s.w.WriteU8(uint8(a.Kind)); err != nil {
			return err
		}
		var err error
		switch a.Kind {
		case ATTR_KIND_NONE:
		case ATTR_KIND_STRING:
			v, _ := a.Value.(string)
			err = s.w.WriteString(v)
		case ATTR_KIND_INT:
			v, _ := a.Value.(int32)
			err = binary.Write(s.w, binary.LittleEndian, v)
		case ATTR_KIND_FLOAT:
			v, _ := a.Value.(float32)
			err = binary.Write(s.w, binary.LittleEndian, v)
		case ATTR_KIND_BOOL:
			var b uint8
			if v, _ := a.Value.(bool); v {
				b = 1
			}
			err = s.w.WriteU8(b)
		case ATTR_KIND_DOUBLE:
			v, _ := a.Value.(float64)
			err = binary.Write(s.w, binary.LittleEndian, v)
		default:
			return fmt.Errorf("otbm: attribute map entry %q has unencodable kind %s", a.Key, a.Kind)
		}
		if err != nil {
			return fmt.Errorf("error writing attribute map entry %q: %v", a.Key, err)
		}
	}
	return nil
}

func (s *saver) writeTileZones(zones []uint16) error {
	if len(zones) > 0xFFFF {
		return fmt.Errorf("otbm: %d tile zones do not fit a u16 count", len(zones))
	}
	if err := s.w.BeginNode(uint8(OTBM_TILE_ZONE)); err != nil {
		return err
	}
	if err := s.w.WriteU16(uint16(len(zones))); err != nil {
		return err
	}
	for _, z := range zones {
		if err := s.w.WriteU16(z); err != nil {
			return err
		}
	}
	return s.w.EndNode()
}

func (s *saver) writeTowns() error {
	if len(s.m.Towns) == 0 {
		return nil
	}
	if err := s.w.BeginNode(uint8(OTBM_TOWNS)); err != nil {
		return err
	}
	for _, town := range s.m.Towns {
		if err := s.w.BeginNode(uint8(OTBM_TOWN)); err != nil {
			return err
		}
		if err := s.w.WriteU32(town.ID); err != nil {
			return err
		}
		if err := s.w.WriteString(town.Name); err != nil {
			return err
		}
		if err := s.writePosition(town.TemplePos); err != nil {
			return err
		}
		if err := s.w.EndNode(); err != nil {
			return err
		}
	}
	return s.w.EndNode()
}

func (s *saver) writeWaypoints() error {
	if len(s.m.Waypoints) == 0 {
		return nil
	}
	if err := s.w.BeginNode(uint8(OTBM_WAYPOINTS)); err != nil {
		return err
	}
	for _, wp := range s.m.Waypoints {
		if err := s.w.BeginNode(uint8(OTBM_WAYPOINT)); err != nil {
			return err
		}
		if err := s.w.WriteString(wp.Name); err != nil {
			return err
		}
		if err := s.writePosition(wp.Pos); err != nil {
			return err
		}
		if err := s.w.EndNode(); err != nil {
			return err
		}
	}
	return s.w.EndNode()
}

func (s *saver) writePosition(p Position) error {
	return binary.Write(s.w, binary.LittleEndian, struct {
		X, Y  uint16
		Floor uint8
	}{p.X, p.Y, p.Floor})
}
