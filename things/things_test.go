package things

import (
	"testing"
)

func testTable() []ItemType {
	return []ItemType{
		{ServerID: 100, ClientID: 200, Ground: true},
		{ServerID: 101, ClientID: 201, Stackable: true},
		{ServerID: 102}, // server-only type, no sprite
	}
}

func TestIDMapLookups(t *testing.T) {
	th := New(testTable())
	m := th.IDMap()

	if id, ok := m.ServerIDForClientID(200); !ok || id != 100 {
		t.Errorf("ServerIDForClientID(200): got %d,%v, want 100,true", id, ok)
	}
	if id, ok := m.ClientIDForServerID(101); !ok || id != 201 {
		t.Errorf("ClientIDForServerID(101): got %d,%v, want 201,true", id, ok)
	}
	if _, ok := m.ServerIDForClientID(999); ok {
		t.Errorf("ServerIDForClientID(999): got ok, want absent")
	}
	if _, ok := m.ClientIDForServerID(102); ok {
		t.Errorf("ClientIDForServerID(102): got ok, want absent (no sprite)")
	}
}

func TestItemTypeByServerID(t *testing.T) {
	th := New(testTable())

	it := th.ItemTypeByServerID(100)
	if it == nil {
		t.Fatalf("ItemTypeByServerID(100): got nil, want item type")
	}
	if !it.Ground {
		t.Errorf("item type 100: got Ground=false, want true")
	}
	if th.ItemTypeByServerID(9999) != nil {
		t.Errorf("ItemTypeByServerID(9999): got item type, want nil")
	}
}

func TestSubtyped(t *testing.T) {
	for _, tc := range []struct {
		name string
		it   ItemType
		want bool
	}{
		{"stackable", ItemType{Stackable: true}, true},
		{"fluid", ItemType{FluidContainer: true}, true},
		{"splash", ItemType{Splash: true}, true},
		{"plain", ItemType{}, false},
		{"ground", ItemType{Ground: true}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.it.Subtyped(); got != tc.want {
				t.Errorf("got %v; want %v", got, tc.want)
			}
		})
	}
}

func TestDuplicateServerIDKeepsFirst(t *testing.T) {
	th := New([]ItemType{
		{ServerID: 100, ClientID: 200, Ground: true},
		{ServerID: 100, ClientID: 250},
	})
	it := th.ItemTypeByServerID(100)
	if it == nil || it.ClientID != 200 {
		t.Errorf("duplicate server ID: got %+v, want first definition with client ID 200", it)
	}
}
