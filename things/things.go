// Package things carries the item-type knowledge the map codec consults: a
// per-server-ID description of the properties that influence decoding
// (ground classification, the stackable/fluid/splash subtype rule) and a
// frozen bidirectional ClientID↔ServerID table.
//
// How a type table is populated (items.otb, XML, a test fixture) is the
// embedder's concern; this package only defines the lookup contract.
package things

import (
	"github.com/golang/glog"
)

// ItemType describes the codec-relevant properties of one item type.
type ItemType struct {
	// ServerID is the persistent, logical ID used by server-side storage
	// and map files.
	ServerID uint16

	// ClientID is the rendering/sprite ID used by the client protocol.
	// Zero if the type has no client-side representation.
	ClientID uint16

	Ground         bool
	Stackable      bool
	FluidContainer bool
	Splash         bool
}

// Subtyped reports whether items of this type carry a subtype/count byte in
// layouts that only provide one for stackable, fluid container and splash
// types.
func (t *ItemType) Subtyped() bool {
	return t.Stackable || t.FluidContainer || t.Splash
}

// TypeSource is the lookup contract consumed by the map codec. A nil result
// means the ID is not in the database, which is a normal outcome handled by
// policy, not an error.
type TypeSource interface {
	ItemTypeByServerID(serverID uint16) *ItemType
}

// IDMap is a bidirectional ClientID↔ServerID table, frozen at construction.
//
// The map does not know whether a raw on-disk ID is a client or a server ID;
// that is decided by the map file's version.
type IDMap struct {
	clientToServer map[uint16]uint16
	serverToClient map[uint16]uint16
}

// ServerIDForClientID resolves a client ID to its server ID.
func (m *IDMap) ServerIDForClientID(clientID uint16) (uint16, bool) {
	id, ok := m.clientToServer[clientID]
	return id, ok
}

// ClientIDForServerID resolves a server ID to its client ID.
func (m *IDMap) ClientIDForServerID(serverID uint16) (uint16, bool) {
	id, ok := m.serverToClient[serverID]
	return id, ok
}

// Things bundles an item type table with the ID map derived from it. Once
// constructed it is immutable and may be shared freely.
type Things struct {
	types map[uint16]ItemType
	ids   IDMap
}

// New builds a Things container from a type table. Construction is the only
// mutation; duplicate server IDs keep the first definition.
func New(types []ItemType) *Things {
	t := &Things{
		types: make(map[uint16]ItemType, len(types)),
		ids: IDMap{
			clientToServer: make(map[uint16]uint16, len(types)),
			serverToClient: make(map[uint16]uint16, len(types)),
		},
	}
	for _, it := range types {
		if _, ok := t.types[it.ServerID]; ok {
			glog.Warningf("duplicate server ID %d in item type table; keeping first", it.ServerID)
			continue
		}
		t.types[it.ServerID] = it
		if it.ClientID != 0 {
			t.ids.serverToClient[it.ServerID] = it.ClientID
			if _, ok := t.ids.clientToServer[it.ClientID]; !ok {
				// duplicate client IDs are, theoretically, permissible
				t.ids.clientToServer[it.ClientID] = it.ServerID
			}
		}
	}
	return t
}

// ItemTypeByServerID implements TypeSource. Returns nil if the server ID is
// not in the table.
func (t *Things) ItemTypeByServerID(serverID uint16) *ItemType {
	if it, ok := t.types[serverID]; ok {
		return &it
	}
	return nil
}

// IDMap returns the frozen ClientID↔ServerID table.
func (t *Things) IDMap() *IDMap {
	return &t.ids
}
