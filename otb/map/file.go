package otbm

import (
	"os"
	"path/filepath"

	"badc0de.net/pkg/go-otbm/things"

	"github.com/pkg/errors"
)

// LoadFile opens and decodes an OTBM map file. The file size is checked
// against the guard ceiling before any parsing happens.
func LoadFile(path string, th *things.Things, opts Options) (*Map, *LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening map file %s", path)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "stating map file %s", path)
	}
	g := newGuard(opts.Guard)
	if err := g.checkFileSize(st.Size()); err != nil {
		return nil, nil, err
	}

	m, rep, err := Load(f, th, opts)
	if err != nil {
		return nil, rep, errors.Wrapf(err, "loading map file %s", path)
	}
	return m, rep, nil
}

// SaveFile encodes the map into path atomically: the bytes go to a temporary
// file in the same directory which is renamed over the target only after a
// successful encode, so a failed save never clobbers an existing map.
func SaveFile(path string, m *Map, th *things.Things, opts SaveOptions) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary map file in %s", dir)
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := Save(tmp, m, th, opts); err != nil {
		return errors.Wrapf(err, "saving map file %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing temporary map file %s", tmp.Name())
	}
	name := tmp.Name()
	tmp = nil
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrapf(err, "renaming temporary map file over %s", path)
	}
	return nil
}
