package otbm

import (
	"encoding/binary"
	"fmt"
	"io"

	"badc0de.net/pkg/go-otbm/otb"
	"badc0de.net/pkg/go-otbm/things"

	"github.com/golang/glog"
)

const (
	// clientIDVersion is the first format version whose payload item ids
	// live in the ClientID space. Below it, ids are already ServerIDs.
	clientIDVersion = 5

	// maxSupportedVersion is the newest format version this codec decodes.
	maxSupportedVersion = 6

	// maxContainerDepth caps container recursion against adversarial
	// nesting.
	maxContainerDepth = 512
)

type loader struct {
	w    *otb.Walker
	th   *things.Things
	opts Options
	g    guard
	m    *Map
	rep  *LoadReport

	sawHouseTile bool
}

// Load reads an OTBM stream and assembles the map and a diagnostics report.
//
// On error the partial map is discarded, but the report still carries every
// warning collected before the fatal point.
func Load(r io.Reader, th *things.Things, opts Options) (*Map, *LoadReport, error) {
	l := &loader{
		w:    otb.NewWalker(r),
		th:   th,
		opts: opts,
		g:    newGuard(opts.Guard),
		rep:  &LoadReport{},
	}
	err := l.load()
	l.rep.Tiles = int(l.g.tiles)
	l.rep.Items = int(l.g.items)
	if err != nil {
		return nil, l.rep, err
	}
	glog.V(1).Infof("otbm: loaded %v: %d tiles, %d items, %d warnings", l.m, l.rep.Tiles, l.rep.Items, len(l.rep.Warnings))
	return l.m, l.rep, nil
}

func (l *loader) formatErr(ctx string, err error) error {
	return &FormatError{Offset: l.w.Offset(), Context: ctx, Err: err}
}

func (l *loader) clientIDSpace() bool {
	return l.m.Header.Version >= clientIDVersion
}

func (l *loader) load() error {
	magic, err := l.w.ReadMagic()
	if err != nil {
		return l.formatErr("reading magic", err)
	}
	if magic != Magic && magic != [4]byte{} {
		return l.formatErr(fmt.Sprintf("bad magic: got %x, want %x or zeroes", magic, Magic), nil)
	}

	if err := l.w.ExpectNodeStart("otbm"); err != nil {
		return l.formatErr("locating root node", err)
	}
	nt, props, err := l.w.BeginNode()
	if err != nil {
		return l.formatErr("reading root node", err)
	}
	if MapNodeType(nt) != OTBM_ROOTV1 {
		return l.formatErr(fmt.Sprintf("unexpected root node type %s, want %s", MapNodeType(nt), OTBM_ROOTV1), nil)
	}

	header, err := l.readRootHeader(props)
	if err != nil {
		return err
	}
	l.m = NewMap(header)
	glog.V(2).Infof("otbm header: %+v", header)

	if props.Delim() != otb.NODE_START {
		return l.formatErr("root node has no map data child", nil)
	}
	return l.eachChild(props, "root", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_MAP_DATA:
			return l.readMapData(child)
		default:
			return l.skipUnknown(nt, child, "root")
		}
	})
}

// readRootHeader decodes version and dimensions, plus the optional items.otb
// version trailer some generators append.
func (l *loader) readRootHeader(props *otb.PropReader) (MapHeader, error) {
	var head struct {
		Ver           uint32
		Width, Height uint16
	}
	if err := binary.Read(props, binary.LittleEndian, &head); err != nil {
		return MapHeader{}, l.formatErr("reading root header", err)
	}
	if head.Ver > maxSupportedVersion {
		if !l.opts.AllowUnsupportedVersions {
			return MapHeader{}, l.formatErr(fmt.Sprintf("unsupported otbm version: got %d, want at most %d", head.Ver, maxSupportedVersion), nil)
		}
		glog.Warningf("otbm: version %d is newer than %d; proceeding as requested", head.Ver, maxSupportedVersion)
	}
	if err := l.g.checkDimensions(head.Width, head.Height); err != nil {
		return MapHeader{}, err
	}

	header := MapHeader{Version: head.Ver, Width: head.Width, Height: head.Height}

	b, delim, err := props.Next()
	if err != nil {
		return MapHeader{}, l.formatErr("reading root header trailer", err)
	}
	if delim == 0 {
		var rest [7]byte
		if err := props.ReadFull(rest[:]); err != nil {
			return MapHeader{}, l.formatErr("reading items version trailer", err)
		}
		header.ItemsVerMajor = uint32(b) | uint32(rest[0])<<8 | uint32(rest[1])<<16 | uint32(rest[2])<<24
		header.ItemsVerMinor = binary.LittleEndian.Uint32(rest[3:7])
		if _, err := props.Drain(); err != nil {
			return MapHeader{}, l.formatErr("draining root header", err)
		}
	}
	return header, nil
}

func (l *loader) readMapData(props *otb.PropReader) error {
	for {
		tag, delim, err := props.Next()
		if err != nil {
			return l.formatErr("reading map data attribute tag", err)
		}
		if delim != 0 {
			break
		}
		switch attr := ItemAttribute(tag); attr {
		case OTBM_ATTR_DESCRIPTION:
			s, err := readString(props)
			if err != nil {
				return l.formatErr("reading map description", err)
			}
			l.m.Header.Descriptions = append(l.m.Header.Descriptions, s)
		case OTBM_ATTR_EXT_SPAWN_MONSTER_FILE:
			if l.m.Header.SpawnMonsterFile, err = readString(props); err != nil {
				return l.formatErr("reading spawn monster file name", err)
			}
		case OTBM_ATTR_EXT_HOUSE_FILE:
			if l.m.Header.HouseFile, err = readString(props); err != nil {
				return l.formatErr("reading house file name", err)
			}
		case OTBM_ATTR_EXT_SPAWN_NPC_FILE:
			if l.m.Header.SpawnNpcFile, err = readString(props); err != nil {
				return l.formatErr("reading spawn npc file name", err)
			}
		case OTBM_ATTR_EXT_ZONE_FILE:
			if l.m.Header.ZoneFile, err = readString(props); err != nil {
				return l.formatErr("reading zone file name", err)
			}
		default:
			if err := l.rep.warn(l.opts.Policy, LoadWarning{
				Code:        WARN_UNKNOWN_ATTRIBUTE,
				Message:     fmt.Sprintf("map data attribute %s is not recognized and cannot be skipped in isolation", attr),
				Remediation: "remaining map data attributes drained",
			}); err != nil {
				return err
			}
			if _, err := props.Drain(); err != nil {
				return l.formatErr("draining map data attributes", err)
			}
		}
	}

	glog.V(1).Infof("otbm: reading map data of %v", l.m)
	err := l.eachChild(props, "map data", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_TILE_AREA:
			return l.readTileArea(child)
		case OTBM_TOWNS:
			return l.readTowns(child)
		case OTBM_WAYPOINTS:
			return l.readWaypoints(child)
		default:
			return l.skipUnknown(nt, child, "map data")
		}
	})
	if err != nil {
		return err
	}

	if l.sawHouseTile && l.m.Header.HouseFile == "" {
		w := LoadWarning{
			Code:        WARN_MISSING_EXT_FILE,
			Message:     "map has house tiles but names no house file",
			Remediation: "house definitions cannot be resolved by the embedder",
		}
		l.rep.Warnings = append(l.rep.Warnings, w)
		glog.Warningf("otbm: %s", w)
	}
	return nil
}

func (l *loader) readTowns(props *otb.PropReader) error {
	glog.V(2).Infof("towns")
	if _, err := props.Drain(); err != nil {
		return l.formatErr("draining towns node payload", err)
	}
	return l.eachChild(props, "towns", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_TOWN:
			return l.readTown(child)
		default:
			return l.skipUnknown(nt, child, "towns")
		}
	})
}

func (l *loader) readTown(props *otb.PropReader) error {
	var town Town
	if err := binary.Read(props, binary.LittleEndian, &town.ID); err != nil {
		return l.formatErr("reading town id", err)
	}
	name, err := readString(props)
	if err != nil {
		return l.formatErr("reading town name", err)
	}
	town.Name = name
	if town.TemplePos, err = readPosition(props); err != nil {
		return l.formatErr("reading town temple position", err)
	}
	glog.V(2).Infof(" town %s (%d) with temple at %s", town.Name, town.ID, town.TemplePos)
	l.m.Towns = append(l.m.Towns, town)

	if _, err := props.Drain(); err != nil {
		return l.formatErr("draining town node payload", err)
	}
	return l.eachChild(props, "town", func(nt MapNodeType, child *otb.PropReader) error {
		return l.skipUnknown(nt, child, "town")
	})
}

func (l *loader) readWaypoints(props *otb.PropReader) error {
	glog.V(2).Infof("waypoints")
	if _, err := props.Drain(); err != nil {
		return l.formatErr("draining waypoints node payload", err)
	}
	return l.eachChild(props, "waypoints", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_WAYPOINT:
			return l.readWaypoint(child)
		default:
			return l.skipUnknown(nt, child, "waypoints")
		}
	})
}

func (l *loader) readWaypoint(props *otb.PropReader) error {
	var wp Waypoint
	name, err := readString(props)
	if err != nil {
		return l.formatErr("reading waypoint name", err)
	}
	wp.Name = name
	if wp.Pos, err = readPosition(props); err != nil {
		return l.formatErr("reading waypoint position", err)
	}
	glog.V(2).Infof(" waypoint %s at %s", wp.Name, wp.Pos)
	l.m.Waypoints = append(l.m.Waypoints, wp)

	if _, err := props.Drain(); err != nil {
		return l.formatErr("draining waypoint node payload", err)
	}
	return l.eachChild(props, "waypoint", func(nt MapNodeType, child *otb.PropReader) error {
		return l.skipUnknown(nt, child, "waypoint")
	})
}

// eachChild walks the children of a node whose payload has been fully
// consumed, calling fn once per child. fn must consume the child through its
// closing NODE_END. The parent's own NODE_END is consumed before returning.
func (l *loader) eachChild(props *otb.PropReader, ctx string, fn func(nt MapNodeType, child *otb.PropReader) error) error {
	delim := props.Delim()
	if delim == otb.NODE_END {
		return nil
	}
	for {
		nt, child, err := l.w.BeginNode()
		if err != nil {
			return l.formatErr(fmt.Sprintf("reading %s child node", ctx), err)
		}
		if err := fn(MapNodeType(nt), child); err != nil {
			return err
		}
		op, err := l.w.NextOp()
		if err != nil {
			return l.formatErr(fmt.Sprintf("reading op after %s child node", ctx), err)
		}
		if op == otb.NODE_END {
			return nil
		}
	}
}

// skipUnknown drains an unrecognized node and all of its descendants,
// recording a warning. Unknown node types are expected in files written by
// newer tools; rejecting them would break forward compatibility.
func (l *loader) skipUnknown(nt MapNodeType, child *otb.PropReader, where string) error {
	glog.V(1).Infof("otbm: skipping unknown node type %s under %s", nt, where)
	l.rep.Warnings = append(l.rep.Warnings, LoadWarning{
		Code:        WARN_UNKNOWN_NODE,
		Message:     fmt.Sprintf("node type %s under %s is not recognized", nt, where),
		Remediation: "subtree skipped",
	})
	if err := l.w.SkipSubtree(child); err != nil {
		return l.formatErr(fmt.Sprintf("skipping unknown node under %s", where), err)
	}
	return nil
}

// readString decodes a u16-length-prefixed string field. The bytes are kept
// verbatim; invalid UTF-8 is the embedder's display concern, not a decode
// failure.
func readString(p *otb.PropReader) (string, error) {
	var sz uint16
	if err := binary.Read(p, binary.LittleEndian, &sz); err != nil {
		return "", fmt.Errorf("error reading string size: %v", err)
	}
	buf := make([]byte, sz)
	if err := p.ReadFull(buf); err != nil {
		return "", fmt.Errorf("error reading string body: %v", err)
	}
	return string(buf), nil
}

// readPosition decodes the u16,u16,u8 position layout.
func readPosition(p *otb.PropReader) (Position, error) {
	var raw struct {
		X, Y  uint16
		Floor uint8
	}
	if err := binary.Read(p, binary.LittleEndian, &raw); err != nil {
		return Position{}, err
	}
	return Position{X: raw.X, Y: raw.Y, Floor: raw.Floor}, nil
}
