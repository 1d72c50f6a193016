package otbm

import (
	"os"
	"path/filepath"
	"testing"

	"badc0de.net/pkg/go-otbm/ttesting"
)

func TestSaveFileLoadFile(t *testing.T) {
	th := loadThingsForTest(t)
	m := NewMap(MapHeader{Version: 2, Width: 8, Height: 8, Descriptions: []string{"disk round trip"}})
	m.SetTile(&Tile{Pos: Position{X: 3, Y: 4, Floor: 7}, Ground: &Item{ID: 100}})

	path := filepath.Join(t.TempDir(), "test.otbm")
	if err := SaveFile(path, m, th, SaveOptions{}); err != nil {
		t.Fatalf("failed to save map file: %v", err)
	}

	m2, rep, err := LoadFile(path, th, Options{})
	if err != nil {
		t.Fatalf("failed to load map file: %v", err)
	}
	ttesting.AssertEqualInt(t, "tile count", m2.TileCount(), 1)
	ttesting.AssertEqualInt(t, "warnings", len(rep.Warnings), 0)
	ttesting.AssertEqualString(t, "description", m2.Header.Descriptions[0], "disk round trip")
}

func TestSaveFileDoesNotClobberOnFailure(t *testing.T) {
	th := loadThingsForTest(t)
	path := filepath.Join(t.TempDir(), "test.otbm")
	if err := os.WriteFile(path, []byte("precious"), 0644); err != nil {
		t.Fatalf("failed to seed target file: %v", err)
	}

	// A version 5 map holding a server id with no client mapping fails to
	// encode under the error policy.
	m := NewMap(MapHeader{Version: 5, Width: 8, Height: 8})
	m.SetTile(&Tile{Pos: Position{X: 0, Y: 0, Floor: 7}, Ground: &Item{ID: 9999}})
	if err := SaveFile(path, m, th, SaveOptions{Policy: UNKNOWN_ITEM_ERROR}); err == nil {
		t.Fatalf("got nil error; want encode failure")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read target file back: %v", err)
	}
	ttesting.AssertEqualString(t, "target intact", string(got), "precious")
}

func TestLoadFileRejectsOversizedFile(t *testing.T) {
	th := loadThingsForTest(t)
	path := filepath.Join(t.TempDir(), "big.otbm")
	if err := os.WriteFile(path, make([]byte, 128), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	_, _, err := LoadFile(path, th, Options{Guard: GuardLimits{MaxFileSize: 64}})
	if err == nil {
		t.Fatalf("got nil error for 128-byte file with a 64-byte ceiling; want ResourceLimitError")
	}
}
