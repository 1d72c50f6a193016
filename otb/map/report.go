package otbm

import (
	"fmt"

	"github.com/golang/glog"
)

// FormatError is a fatal problem with the byte stream itself: bad magic,
// invalid stream op, truncated read, unsupported version. No partial map is
// returned alongside one.
type FormatError struct {
	Offset  int64
	Context string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("otbm: %s at offset %d: %v", e.Context, e.Offset, e.Err)
	}
	return fmt.Sprintf("otbm: %s at offset %d", e.Context, e.Offset)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// ResourceLimitError is fatal but does not indicate corruption: a resource
// guard ceiling was exceeded and the load was aborted to bound peak memory.
type ResourceLimitError struct {
	Limit string
	Got   int64
	Max   int64
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("otbm: resource limit exceeded: %s %d > %d", e.Limit, e.Got, e.Max)
}

// LoadWarning is one recoverable finding, recorded instead of raised.
type LoadWarning struct {
	Code        WarningCode
	Message     string
	ItemID      uint16
	Pos         Position
	Remediation string
}

func (w LoadWarning) String() string {
	return fmt.Sprintf("[%s] %s (id=%d pos=%s remediation=%s)", w.Code, w.Message, w.ItemID, w.Pos, w.Remediation)
}

// Replacement records one placeholder substitution performed under the
// placeholder policy.
type Replacement struct {
	Pos        Position
	OriginalID uint16
}

// LoadReport is the diagnostics side of a load: warnings, counters, and the
// structured repair list.
type LoadReport struct {
	Warnings []LoadWarning

	// UnknownItemIDs counts ids absent from the item type database.
	UnknownItemIDs int

	// Replacements lists where placeholder items were substituted.
	Replacements []Replacement

	// ServerLikeIDs counts ids that failed resolution in a ClientID-space
	// file but exist in the ServerID space, and ClientLikeIDs the inverse.
	// Nonzero values suggest a mis-tagged file.
	ServerLikeIDs int
	ClientLikeIDs int

	Tiles int
	Items int
}

// warn records a warning, mirrors it to the log, and escalates to an error
// under the error policy.
func (r *LoadReport) warn(policy UnknownItemPolicy, w LoadWarning) error {
	r.Warnings = append(r.Warnings, w)
	glog.Warningf("otbm: %s", w)
	if policy == UNKNOWN_ITEM_ERROR {
		return fmt.Errorf("otbm: %s: %s", w.Code, w.Message)
	}
	return nil
}

// Options configures a load.
type Options struct {
	// Policy selects the reaction to item ids absent from the item type
	// database.
	Policy UnknownItemPolicy

	// AllowUnsupportedVersions turns the header version check into a
	// warning.
	AllowUnsupportedVersions bool

	// Guard bounds resource use during streaming. Zero fields take
	// defaults.
	Guard GuardLimits
}

// SaveOptions configures a save. The policy applies to the inverse id
// translation: a ServerID with no ClientID mapping in a ClientID-space file.
type SaveOptions struct {
	Policy UnknownItemPolicy
}
