package otbm

import (
	"github.com/golang/glog"
)

// GuardLimits bounds what a load may cost before it is aborted. Declared
// dimensions do not bound actual item density, so tiles and items are also
// counted while streaming; only that running check catches adversarial or
// corrupted inputs before memory exhaustion.
type GuardLimits struct {
	// MaxFileSize is the pre-open ceiling on the raw file size, consulted
	// by LoadFile. 0 means the default.
	MaxFileSize int64

	// MaxWidth and MaxHeight bound the dimensions the header declares.
	MaxWidth, MaxHeight uint16

	// MaxTiles and MaxItems are hard stops for the running counters.
	MaxTiles, MaxItems int64

	// SampleEvery is how many tiles pass between counter checkpoints.
	SampleEvery int
}

const (
	defaultMaxFileSize = 1 << 30 // 1 GiB
	defaultMaxDim      = 0xFFFE
	defaultMaxTiles    = 1 << 24
	defaultMaxItems    = 1 << 26
	defaultSampleEvery = 1024
)

func (l GuardLimits) withDefaults() GuardLimits {
	if l.MaxFileSize == 0 {
		l.MaxFileSize = defaultMaxFileSize
	}
	if l.MaxWidth == 0 {
		l.MaxWidth = defaultMaxDim
	}
	if l.MaxHeight == 0 {
		l.MaxHeight = defaultMaxDim
	}
	if l.MaxTiles == 0 {
		l.MaxTiles = defaultMaxTiles
	}
	if l.MaxItems == 0 {
		l.MaxItems = defaultMaxItems
	}
	if l.SampleEvery == 0 {
		l.SampleEvery = defaultSampleEvery
	}
	return l
}

// guard tracks running tile/item counts for one load. Three checkpoints:
// pre-open (file size), post-header (declared dimensions), and periodic
// during streaming. A checkpoint passes, soft-warns once at seven eighths of
// a ceiling, or hard-stops.
type guard struct {
	limits      GuardLimits
	tiles       int64
	items       int64
	sinceSample int
	softWarned  bool
}

func newGuard(limits GuardLimits) guard {
	return guard{limits: limits.withDefaults()}
}

func (g *guard) checkFileSize(size int64) error {
	if size > g.limits.MaxFileSize {
		return &ResourceLimitError{Limit: "file size", Got: size, Max: g.limits.MaxFileSize}
	}
	return nil
}

func (g *guard) checkDimensions(width, height uint16) error {
	if width == 0 || height == 0 {
		return &ResourceLimitError{Limit: "dimensions", Got: int64(width) * int64(height), Max: 1}
	}
	if width > g.limits.MaxWidth {
		return &ResourceLimitError{Limit: "width", Got: int64(width), Max: int64(g.limits.MaxWidth)}
	}
	if height > g.limits.MaxHeight {
		return &ResourceLimitError{Limit: "height", Got: int64(height), Max: int64(g.limits.MaxHeight)}
	}
	return nil
}

func (g *guard) countTile(rep *LoadReport) error {
	g.tiles++
	g.sinceSample++
	if g.sinceSample < g.limits.SampleEvery {
		return nil
	}
	g.sinceSample = 0
	return g.sample(rep)
}

func (g *guard) countItem(rep *LoadReport) error {
	g.items++
	// Items are sampled on the tile cadence, except that a single runaway
	// tile or container must not dodge the checkpoint.
	if g.items&0x3FF == 0 {
		return g.sample(rep)
	}
	return nil
}

func (g *guard) sample(rep *LoadReport) error {
	if g.tiles > g.limits.MaxTiles {
		return &ResourceLimitError{Limit: "tiles", Got: g.tiles, Max: g.limits.MaxTiles}
	}
	if g.items > g.limits.MaxItems {
		return &ResourceLimitError{Limit: "items", Got: g.items, Max: g.limits.MaxItems}
	}
	if !g.softWarned && (g.tiles > g.limits.MaxTiles-g.limits.MaxTiles/8 || g.items > g.limits.MaxItems-g.limits.MaxItems/8) {
		g.softWarned = true
		glog.Warningf("otbm: load nearing resource ceiling: %d tiles, %d items", g.tiles, g.items)
		rep.Warnings = append(rep.Warnings, LoadWarning{
			Code:        WARN_RESOURCE_PRESSURE,
			Message:     "load is nearing the configured resource ceiling",
			Remediation: "continuing; raise GuardLimits if the map is legitimately this large",
		})
	}
	return nil
}
