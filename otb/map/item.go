package otbm

import (
	"encoding/binary"
	"fmt"

	"badc0de.net/pkg/go-otbm/otb"

	"github.com/golang/glog"
)

// resolveRawID turns an on-disk item id into a resolved Item per the format
// version's id-space and the unknown-item policy. keep reports whether the
// caller should attach the item to its tile or container.
func (l *loader) resolveRawID(raw uint16, at Position) (item *Item, keep bool, err error) {
	item = &Item{}
	if l.clientIDSpace() {
		if sid, ok := l.th.IDMap().ServerIDForClientID(raw); ok {
			item.ID = sid
			item.ClientID = raw
			return item, true, nil
		}
		if l.th.ItemTypeByServerID(raw) != nil {
			l.misTaggedID(raw, at, "server")
		}
		return l.unknownItem(item, raw, at)
	}
	if it := l.th.ItemTypeByServerID(raw); it != nil {
		item.ID = raw
		item.ClientID = it.ClientID
		return item, true, nil
	}
	if _, ok := l.th.IDMap().ServerIDForClientID(raw); ok {
		l.misTaggedID(raw, at, "client")
	}
	return l.unknownItem(item, raw, at)
}

// misTaggedID records that a raw id failed resolution in the file's declared
// id-space but resolves in the other one, which usually means the file's
// version lies about its id-space.
func (l *loader) misTaggedID(raw uint16, at Position, space string) {
	if space == "server" {
		l.rep.ServerLikeIDs++
	} else {
		l.rep.ClientLikeIDs++
	}
	w := LoadWarning{
		Code:        WARN_UNMAPPED_ID,
		Message:     fmt.Sprintf("id %d failed resolution but exists in the %s id space", raw, space),
		ItemID:      raw,
		Pos:         at,
		Remediation: "check whether the file's version matches its id space",
	}
	l.rep.Warnings = append(l.rep.Warnings, w)
	glog.Warningf("otbm: %s", w)
}

func (l *loader) unknownItem(item *Item, raw uint16, at Position) (*Item, bool, error) {
	l.rep.UnknownItemIDs++
	item.ID = 0
	item.RawUnknownID = raw
	l.rep.Replacements = append(l.rep.Replacements, Replacement{Pos: at, OriginalID: raw})
	if err := l.rep.warn(l.opts.Policy, LoadWarning{
		Code:        WARN_UNKNOWN_ITEM_ID,
		Message:     fmt.Sprintf("item id %d not found in the item type tables", raw),
		ItemID:      raw,
		Pos:         at,
		Remediation: l.opts.Policy.String(),
	}); err != nil {
		return nil, false, err
	}
	return item, l.opts.Policy == UNKNOWN_ITEM_PLACEHOLDER, nil
}

// readItem decodes one OTBM_ITEM node, including nested container contents.
func (l *loader) readItem(props *otb.PropReader, at Position, depth int) (*Item, bool, error) {
	if depth > maxContainerDepth {
		return nil, false, l.formatErr(fmt.Sprintf("container nesting deeper than %d", maxContainerDepth), nil)
	}

	var raw uint16
	if err := binary.Read(props, binary.LittleEndian, &raw); err != nil {
		return nil, false, l.formatErr("reading item id", err)
	}
	item, keep, err := l.resolveRawID(raw, at)
	if err != nil {
		return nil, false, err
	}
	if err := l.g.countItem(l.rep); err != nil {
		return nil, false, err
	}

	// Version 1 carries the subtype of stackable, fluid container and splash
	// types as a bare byte right after the id, outside the attribute loop.
	if l.m.Header.Version == 1 {
		if it := l.th.ItemTypeByServerID(item.ID); it != nil && it.Subtyped() {
			b, delim, err := props.Next()
			if err != nil {
				return nil, false, l.formatErr("reading version 1 item subtype", err)
			}
			if delim != 0 {
				return nil, false, l.formatErr("item payload ended before version 1 subtype byte", nil)
			}
			item.Subtype = uint16(b)
		}
	}

	for {
		tag, delim, err := props.Next()
		if err != nil {
			return nil, false, l.formatErr("reading item attribute tag", err)
		}
		if delim != 0 {
			break
		}
		if err := l.readItemAttribute(props, ItemAttribute(tag), item, at); err != nil {
			return nil, false, err
		}
	}

	item.promoteAliases()
	l.crossFillSubtype(item)

	err = l.eachChild(props, "item", func(nt MapNodeType, child *otb.PropReader) error {
		switch nt {
		case OTBM_ITEM:
			sub, subKeep, err := l.readItem(child, at, depth+1)
			if err != nil {
				return err
			}
			if subKeep {
				item.Contents = append(item.Contents, sub)
			}
			return nil
		default:
			return l.skipUnknown(nt, child, "item")
		}
	})
	if err != nil {
		return nil, false, err
	}
	return item, keep, nil
}

func (l *loader) readItemAttribute(props *otb.PropReader, attr ItemAttribute, item *Item, at Position) error {
	var err error
	switch attr {
	case OTBM_ATTR_COUNT:
		err = binary.Read(props, binary.LittleEndian, &item.Count)
	case OTBM_ATTR_RUNE_CHARGES:
		if err = binary.Read(props, binary.LittleEndian, &item.RuneCharges); err == nil {
			item.Subtype = uint16(item.RuneCharges)
		}
	case OTBM_ATTR_CHARGES:
		if err = binary.Read(props, binary.LittleEndian, &item.Charges); err == nil {
			item.Subtype = item.Charges
		}
	case OTBM_ATTR_ACTION_ID:
		err = binary.Read(props, binary.LittleEndian, &item.ActionID)
	case OTBM_ATTR_UNIQUE_ID:
		err = binary.Read(props, binary.LittleEndian, &item.UniqueID)
	case OTBM_ATTR_DEPOT_ID:
		err = binary.Read(props, binary.LittleEndian, &item.DepotID)
	case OTBM_ATTR_HOUSEDOORID:
		err = binary.Read(props, binary.LittleEndian, &item.HouseDoorID)
	case OTBM_ATTR_TEXT:
		item.Text, err = readString(props)
	case OTBM_ATTR_DESC:
		item.Description, err = readString(props)
	case OTBM_ATTR_TELE_DEST:
		var dest Position
		if dest, err = readPosition(props); err == nil {
			item.TeleDest = &dest
		}
	case OTBM_ATTR_ATTRIBUTE_MAP:
		return l.readAttributeMap(props, item)
	default:
		// Attribute payload lengths are tag-defined, so one unknown tag
		// desyncs the rest of the payload with it.
		if err := l.rep.warn(l.opts.Policy, LoadWarning{
			Code:        WARN_UNKNOWN_ATTRIBUTE,
			Message:     fmt.Sprintf("item attribute %s is not recognized and cannot be skipped in isolation", attr),
			ItemID:      item.ID,
			Pos:         at,
			Remediation: "remaining item attributes drained",
		}); err != nil {
			return err
		}
		if _, err := props.Drain(); err != nil {
			return l.formatErr("draining item attributes", err)
		}
		return nil
	}
	if err != nil {
		return l.formatErr(fmt.Sprintf("reading item %s attribute", attr), err)
	}
	return nil
}

// readAttributeMap decodes the open-ended attribute map: a u16 entry count
// followed by key/kind/value triples. An unrecognized value kind is fatal
// since its width is unknown.
func (l *loader) readAttributeMap(props *otb.PropReader, item *Item) error {
	var count uint16
	if err := binary.Read(props, binary.LittleEndian, &count); err != nil {
		return l.formatErr("reading attribute map entry count", err)
	}
	for i := 0; i < int(count); i++ {
		key, err := readString(props)
		if err != nil {
			return l.formatErr("reading attribute map key", err)
		}
		var kind uint8
		if err := binary.Read(props, binary.LittleEndian, &kind); err != nil {
			return l.formatErr(fmt.Sprintf("reading attribute map kind of %q", key), err)
		}
		a := Attribute{Key: key, Kind: AttributeKind(kind)}
		switch a.Kind {
		case ATTR_KIND_NONE:
		case ATTR_KIND_STRING:
			var v string
			if v, err = readString(props); err == nil {
				a.Value = v
			}
		case ATTR_KIND_INT:
			var v int32
			if err = binary.Read(props, binary.LittleEndian, &v); err == nil {
				a.Value = v
			}
		case ATTR_KIND_FLOAT:
			var v float32
			if err = binary.Read(props, binary.LittleEndian, &v); err == nil {
				a.Value = v
			}
		case ATTR_KIND_BOOL:
			var v uint8
			if err = binary.Read(props, binary.LittleEndian, &v); err == nil {
				a.Value = v != 0
			}
		case ATTR_KIND_DOUBLE:
			var v float64
			if err = binary.Read(props, binary.LittleEndian, &v); err == nil {
				a.Value = v
			}
		default:
			return l.formatErr(fmt.Sprintf("attribute map entry %q has unrecognized value kind %s", key, a.Kind), nil)
		}
		if err != nil {
			return l.formatErr(fmt.Sprintf("reading attribute map value of %q", key), err)
		}
		item.Attributes = append(item.Attributes, a)
	}
	return nil
}

// promoteAliases mirrors well-known attribute map entries into the matching
// first-class fields. Fixed attributes always win; a map entry is promoted
// only where the fixed path left the field unset. The entries themselves stay
// in Attributes so a save reproduces them verbatim.
func (i *Item) promoteAliases() {
	var dx, dy, dz int32
	var hasDest bool
	for _, a := range i.Attributes {
		switch a.Key {
		case "aid":
			if v, ok := a.Value.(int32); ok && i.ActionID == 0 {
				i.ActionID = uint16(v)
			}
		case "uid":
			if v, ok := a.Value.(int32); ok && i.UniqueID == 0 {
				i.UniqueID = uint16(v)
			}
		case "text":
			if v, ok := a.Value.(string); ok && i.Text == "" {
				i.Text = v
			}
		case "desc":
			if v, ok := a.Value.(string); ok && i.Description == "" {
				i.Description = v
			}
		case "subtype":
			if v, ok := a.Value.(int32); ok && i.Subtype == 0 {
				i.Subtype = uint16(v)
			}
		case "depotid":
			if v, ok := a.Value.(int32); ok && i.DepotID == 0 {
				i.DepotID = uint16(v)
			}
		case "doorid":
			if v, ok := a.Value.(int32); ok && i.HouseDoorID == 0 {
				i.HouseDoorID = uint8(v)
			}
		case "destination.x":
			if v, ok := a.Value.(int32); ok {
				dx, hasDest = v, true
			}
		case "destination.y":
			if v, ok := a.Value.(int32); ok {
				dy, hasDest = v, true
			}
		case "destination.z":
			if v, ok := a.Value.(int32); ok {
				dz, hasDest = v, true
			}
		}
	}
	if hasDest && i.TeleDest == nil {
		i.TeleDest = &Position{X: uint16(dx), Y: uint16(dy), Floor: uint8(dz)}
	}
}

// crossFillSubtype reconciles the two historical names of the subtype slot
// for types that actually carry one.
func (l *loader) crossFillSubtype(item *Item) {
	it := l.th.ItemTypeByServerID(item.ID)
	if it == nil || !it.Subtyped() {
		return
	}
	if item.Subtype == 0 && item.Count != 0 {
		item.Subtype = uint16(item.Count)
	}
	if item.Count == 0 && item.Subtype != 0 {
		item.Count = uint8(item.Subtype)
	}
}
