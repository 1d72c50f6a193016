package otbm

import (
	"fmt"
)

// Magic is the canonical 4-byte identifier ahead of the root node. Readers
// also accept an all-zero identifier, which some generators emit as a
// wildcard.
var Magic = [4]byte{'O', 'T', 'B', 'M'}

// MapNodeType enumerates the node type tags of the OTBM grammar.
//
// Implementation detail: iota is not used primarily for easier referencing in
// case of an error.
type MapNodeType uint8

const (
	OTBM_ROOT        MapNodeType = 0x00
	OTBM_ROOTV1      MapNodeType = 0x01
	OTBM_MAP_DATA    MapNodeType = 0x02
	OTBM_ITEM_DEF    MapNodeType = 0x03
	OTBM_TILE_AREA   MapNodeType = 0x04
	OTBM_TILE        MapNodeType = 0x05
	OTBM_ITEM        MapNodeType = 0x06
	OTBM_TILE_SQUARE MapNodeType = 0x07
	OTBM_TILE_REF    MapNodeType = 0x08
	OTBM_SPAWNS      MapNodeType = 0x09
	OTBM_SPAWN_AREA  MapNodeType = 0x0A
	OTBM_MONSTER     MapNodeType = 0x0B
	OTBM_TOWNS       MapNodeType = 0x0C
	OTBM_TOWN        MapNodeType = 0x0D
	OTBM_HOUSETILE   MapNodeType = 0x0E
	OTBM_WAYPOINTS   MapNodeType = 0x0F
	OTBM_WAYPOINT    MapNodeType = 0x10
	OTBM_TILE_ZONE   MapNodeType = 0x13
)

func (t MapNodeType) String() string {
	switch t {
	case OTBM_ROOT:
		return "root"
	case OTBM_ROOTV1:
		return "rootv1"
	case OTBM_MAP_DATA:
		return "map_data"
	case OTBM_ITEM_DEF:
		return "item_def"
	case OTBM_TILE_AREA:
		return "tile_area"
	case OTBM_TILE:
		return "tile"
	case OTBM_ITEM:
		return "item"
	case OTBM_TILE_SQUARE:
		return "tile_square"
	case OTBM_TILE_REF:
		return "tile_ref"
	case OTBM_SPAWNS:
		return "spawns"
	case OTBM_SPAWN_AREA:
		return "spawn_area"
	case OTBM_MONSTER:
		return "monster"
	case OTBM_TOWNS:
		return "towns"
	case OTBM_TOWN:
		return "town"
	case OTBM_HOUSETILE:
		return "housetile"
	case OTBM_WAYPOINTS:
		return "waypoints"
	case OTBM_WAYPOINT:
		return "waypoint"
	case OTBM_TILE_ZONE:
		return "tile_zone"
	default:
		return fmt.Sprintf("unknown otbm node type %02x", int(t))
	}
}

// ItemAttribute enumerates the tag bytes of the attribute loops found in
// MAP_DATA, TILE/HOUSETILE and ITEM nodes. Lengths are tag-defined, not
// self-describing, which is why an unrecognized tag forces the rest of the
// payload to be drained.
type ItemAttribute uint8

const (
	OTBM_ATTR_DESCRIPTION            ItemAttribute = 0x01
	OTBM_ATTR_EXT_FILE               ItemAttribute = 0x02
	OTBM_ATTR_TILE_FLAGS             ItemAttribute = 0x03
	OTBM_ATTR_ACTION_ID              ItemAttribute = 0x04
	OTBM_ATTR_UNIQUE_ID              ItemAttribute = 0x05
	OTBM_ATTR_TEXT                   ItemAttribute = 0x06
	OTBM_ATTR_DESC                   ItemAttribute = 0x07
	OTBM_ATTR_TELE_DEST              ItemAttribute = 0x08
	OTBM_ATTR_ITEM                   ItemAttribute = 0x09
	OTBM_ATTR_DEPOT_ID               ItemAttribute = 0x0A
	OTBM_ATTR_EXT_SPAWN_MONSTER_FILE ItemAttribute = 0x0B
	OTBM_ATTR_RUNE_CHARGES           ItemAttribute = 0x0C
	OTBM_ATTR_EXT_HOUSE_FILE         ItemAttribute = 0x0D
	OTBM_ATTR_HOUSEDOORID            ItemAttribute = 0x0E
	OTBM_ATTR_COUNT                  ItemAttribute = 0x0F
	OTBM_ATTR_DURATION               ItemAttribute = 0x10
	OTBM_ATTR_DECAYING_STATE         ItemAttribute = 0x11
	OTBM_ATTR_WRITTENDATE            ItemAttribute = 0x12
	OTBM_ATTR_WRITTENBY              ItemAttribute = 0x13
	OTBM_ATTR_SLEEPERGUID            ItemAttribute = 0x14
	OTBM_ATTR_SLEEPSTART             ItemAttribute = 0x15
	OTBM_ATTR_CHARGES                ItemAttribute = 0x16
	OTBM_ATTR_EXT_SPAWN_NPC_FILE     ItemAttribute = 0x17
	OTBM_ATTR_EXT_ZONE_FILE          ItemAttribute = 0x18

	OTBM_ATTR_ATTRIBUTE_MAP ItemAttribute = 128
)

func (a ItemAttribute) String() string {
	switch a {
	case OTBM_ATTR_DESCRIPTION:
		return "description"
	case OTBM_ATTR_EXT_FILE:
		return "ext_file"
	case OTBM_ATTR_TILE_FLAGS:
		return "tile_flags"
	case OTBM_ATTR_ACTION_ID:
		return "action_id"
	case OTBM_ATTR_UNIQUE_ID:
		return "unique_id"
	case OTBM_ATTR_TEXT:
		return "text"
	case OTBM_ATTR_DESC:
		return "desc"
	case OTBM_ATTR_TELE_DEST:
		return "tele_dest"
	case OTBM_ATTR_ITEM:
		return "item"
	case OTBM_ATTR_DEPOT_ID:
		return "depot_id"
	case OTBM_ATTR_EXT_SPAWN_MONSTER_FILE:
		return "ext_spawn_monster_file"
	case OTBM_ATTR_RUNE_CHARGES:
		return "rune_charges"
	case OTBM_ATTR_EXT_HOUSE_FILE:
		return "ext_house_file"
	case OTBM_ATTR_HOUSEDOORID:
		return "housedoorid"
	case OTBM_ATTR_COUNT:
		return "count"
	case OTBM_ATTR_DURATION:
		return "duration"
	case OTBM_ATTR_DECAYING_STATE:
		return "decaying_state"
	case OTBM_ATTR_WRITTENDATE:
		return "writtendate"
	case OTBM_ATTR_WRITTENBY:
		return "writtenby"
	case OTBM_ATTR_SLEEPERGUID:
		return "sleeperguid"
	case OTBM_ATTR_SLEEPSTART:
		return "sleepstart"
	case OTBM_ATTR_CHARGES:
		return "charges"
	case OTBM_ATTR_EXT_SPAWN_NPC_FILE:
		return "ext_spawn_npc_file"
	case OTBM_ATTR_EXT_ZONE_FILE:
		return "ext_zone_file"

	case OTBM_ATTR_ATTRIBUTE_MAP:
		return "attribute_map"

	default:
		return fmt.Sprintf("unknown otbm attribute %02x", int(a))
	}
}

// AttributeKind enumerates the type tags of open-ended attribute-map
// entries.
type AttributeKind uint8

const (
	ATTR_KIND_NONE   AttributeKind = 0x00
	ATTR_KIND_STRING AttributeKind = 0x01
	ATTR_KIND_INT    AttributeKind = 0x02
	ATTR_KIND_FLOAT  AttributeKind = 0x03
	ATTR_KIND_BOOL   AttributeKind = 0x04
	ATTR_KIND_DOUBLE AttributeKind = 0x05
)

func (k AttributeKind) String() string {
	switch k {
	case ATTR_KIND_NONE:
		return "none"
	case ATTR_KIND_STRING:
		return "string"
	case ATTR_KIND_INT:
		return "int"
	case ATTR_KIND_FLOAT:
		return "float"
	case ATTR_KIND_BOOL:
		return "bool"
	case ATTR_KIND_DOUBLE:
		return "double"
	default:
		return fmt.Sprintf("unknown attribute kind %02x", int(k))
	}
}

// WarningCode classifies recoverable load findings.
type WarningCode uint8

const (
	WARN_UNKNOWN_ITEM_ID   WarningCode = 0x01
	WARN_UNMAPPED_ID       WarningCode = 0x02
	WARN_UNKNOWN_ATTRIBUTE WarningCode = 0x03
	WARN_UNKNOWN_NODE      WarningCode = 0x04
	WARN_MISSING_EXT_FILE  WarningCode = 0x05
	WARN_RESOURCE_PRESSURE WarningCode = 0x06
)

func (c WarningCode) String() string {
	switch c {
	case WARN_UNKNOWN_ITEM_ID:
		return "unknown_item_id"
	case WARN_UNMAPPED_ID:
		return "unmapped_id"
	case WARN_UNKNOWN_ATTRIBUTE:
		return "unknown_attribute"
	case WARN_UNKNOWN_NODE:
		return "unknown_node"
	case WARN_MISSING_EXT_FILE:
		return "missing_ext_file"
	case WARN_RESOURCE_PRESSURE:
		return "resource_pressure"
	default:
		return fmt.Sprintf("unknown warning code %02x", int(c))
	}
}

// UnknownItemPolicy selects what the item codec does when an on-disk ID
// cannot be resolved against the item type database.
//
// Implementation detail: iota is not used primarily for easier referencing in
// case of an error.
type UnknownItemPolicy uint8

const (
	// UNKNOWN_ITEM_PLACEHOLDER keeps a placeholder item with ID 0,
	// remembering the original ID, and records a warning.
	UNKNOWN_ITEM_PLACEHOLDER UnknownItemPolicy = 0x00
	// UNKNOWN_ITEM_SKIP decodes the item like PLACEHOLDER but leaves it out
	// of the assembled tile or container.
	UNKNOWN_ITEM_SKIP UnknownItemPolicy = 0x01
	// UNKNOWN_ITEM_ERROR aborts the load or save.
	UNKNOWN_ITEM_ERROR UnknownItemPolicy = 0x02
)

func (p UnknownItemPolicy) String() string {
	switch p {
	case UNKNOWN_ITEM_PLACEHOLDER:
		return "placeholder"
	case UNKNOWN_ITEM_SKIP:
		return "skip"
	case UNKNOWN_ITEM_ERROR:
		return "error"
	default:
		return fmt.Sprintf("unknown policy %02x", int(p))
	}
}
