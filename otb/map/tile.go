package otbm

import (
	"encoding/binary"
	"fmt"

	"badc0de.net/pkg/go-otbm/otb"

	"github.com/golang/glog"
)

func (l *loader) readTileArea(props *otb.PropReader) error {
	var base struct {
		X, Y  uint16
		Floor uint8
	}
	if err := binary.Read(props, binary.LittleEndian, &base); err != nil {
		return l.formatErr("reading tile area base coordinate", err)
	}
	glog.V(2).Infof("tile area at (%d,%d,%d)", base.X, base.Y, base.Floor)
	if _, err := props.Drain(); err != nil {
		return l.formatErr("draining tile area payload", err)
	}
	return l.eachChild(props, "tile area", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_TILE, OTBM_HOUSETILE:
			return l.readTile(child, Position{X: base.X, Y: base.Y, Floor: base.Floor}, nt)
		default:
			return l.skipUnknown(nt, child, "tile area")
		}
	})
}

func (l *loader) readTile(props *otb.PropReader, base Position, nt MapNodeType) error {
	var off struct {
		X, Y uint8
	}
	if err := binary.Read(props, binary.LittleEndian, &off); err != nil {
		return l.formatErr("reading tile offset", err)
	}
	tile := &Tile{Pos: Position{X: base.X + uint16(off.X), Y: base.Y + uint16(off.Y), Floor: base.Floor}}
	if nt == OTBM_HOUSETILE {
		if err := binary.Read(props, binary.LittleEndian, &tile.HouseID); err != nil {
			return l.formatErr("reading house id", err)
		}
		l.sawHouseTile = true
	}
	if err := l.g.countTile(l.rep); err != nil {
		return err
	}
	glog.V(2).Infof(" %v", tile)

	for {
		tag, delim, err := props.Next()
		if err != nil {
			return l.formatErr("reading tile attribute tag", err)
		}
		if delim != 0 {
			break
		}
		switch attr := ItemAttribute(tag); attr {
		case OTBM_ATTR_TILE_FLAGS:
			if err := binary.Read(props, binary.LittleEndian, &tile.Flags); err != nil {
				return l.formatErr("reading tile flags", err)
			}
		case OTBM_ATTR_ITEM:
			// Compact in-payload item: a bare id, used for plain ground.
			var raw uint16
			if err := binary.Read(props, binary.LittleEndian, &raw); err != nil {
				return l.formatErr("reading compact tile item id", err)
			}
			item, keep, err := l.resolveRawID(raw, tile.Pos)
			if err != nil {
				return err
			}
			if err := l.g.countItem(l.rep); err != nil {
				return err
			}
			if keep {
				l.addToTile(tile, item)
			}
		default:
			if err := l.rep.warn(l.opts.Policy, LoadWarning{
				Code:        WARN_UNKNOWN_ATTRIBUTE,
				Message:     fmt.Sprintf("tile attribute %s is not recognized and cannot be skipped in isolation", attr),
				Pos:         tile.Pos,
				Remediation: "remaining tile attributes drained",
			}); err != nil {
				return err
			}
			if _, err := props.Drain(); err != nil {
				return l.formatErr("draining tile attributes", err)
			}
		}
	}

	err := l.eachChild(props, "tile", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_ITEM:
			item, keep, err := l.readItem(child, tile.Pos, 0)
			if err != nil {
				return err
			}
			if keep {
				l.addToTile(tile, item)
			}
			return nil
		case OTBM_TILE_ZONE:
			return l.readTileZone(child, tile)
		default:
			return l.skipUnknown(nt, child, "tile")
		}
	})
	if err != nil {
		return err
	}

	l.m.SetTile(tile)
	return nil
}

// addToTile classifies the item against the type tables: ground types go to
// the ground slot, everything else to the stack.
func (l *loader) addToTile(tile *Tile, item *Item) {
	ground := false
	if it := l.th.ItemTypeByServerID(item.ID); it != nil && it.Ground {
		ground = true
	}
	tile.addItem(item, ground)
}

func (l *loader) readTileZone(props *otb.PropReader, tile *Tile) error {
	var count uint16
	if err := binary.Read(props, binary.LittleEndian, &count); err != nil {
		return l.formatErr("reading tile zone count", err)
	}
	for i := 0; i < int(count); i++ {
		var zone uint16
		if err := binary.Read(props, binary.LittleEndian, &zone); err != nil {
			return l.formatErr("reading tile zone id", err)
		}
		tile.Zones = append(tile.Zones, zone)
	}
	if _, err := props.Drain(); err != nil {
		return l.formatErr("draining tile zone payload", err)
	}
	return l.eachChild(props, "tile zone", func(nt MapNodeType, child *otb.PropReader) error {
		return l.skipUnknown(nt, child, "tile zone")
	})
}
