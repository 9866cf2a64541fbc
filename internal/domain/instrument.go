package domain

import (
	"fmt"
	"strings"
	"time"
)

// NameSource identifies the external system that supplied an instrument's
// display name. Sources are ranked by trustworthiness.
type NameSource string

const (
	NameSourceESMAFirds NameSource = "ESMA_FIRDS"
	NameSourceFCAFirds  NameSource = "FCA_FIRDS"
	NameSourceSIX       NameSource = "SIX"
	NameSourceFallback  NameSource = "FALLBACK"
)

// nameSourcePriority ranks name sources; a lower rank wins. Regulatory
// registries (ESMA/FCA FIRDS) outrank the secondary exchange source (SIX),
// which outranks inferred fallback data.
var nameSourcePriority = map[NameSource]int{
	NameSourceESMAFirds: 1,
	NameSourceFCAFirds:  1,
	NameSourceSIX:       2,
	NameSourceFallback:  3,
}

// Priority returns the rank of the source (lower = more trusted). Unknown
// sources rank below every known one.
func (s NameSource) Priority() int {
	if p, ok := nameSourcePriority[s]; ok {
		return p
	}
	return len(nameSourcePriority) + 1
}

// Instrument is the canonical identity of one security, keyed by ISIN or by a
// synthesized temporary identifier when no registry has assigned one yet.
// Instruments are created on first sight and never deleted.
type Instrument struct {
	ISIN          string
	Name          string
	NameSource    NameSource
	NameConflict  bool
	ISINTemporary bool
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
}

// MergeOutcome is the decision taken when a new sighting of an instrument
// arrives from some source.
type MergeOutcome int

const (
	MergeCreate MergeOutcome = iota
	MergeOverwrite
	MergeFlagConflict
	MergeRefreshOnly
)

// DecideNameMerge decides how a sighting of (name, source) applies to an
// existing instrument record:
//   - no existing record: create it
//   - strictly higher priority source: overwrite the stored name
//   - equal priority, different name: flag a conflict, keep the stored name
//   - otherwise: refresh last-seen only
//
// Pure function, so the merge policy is testable without storage.
func DecideNameMerge(existing *Instrument, name string, source NameSource) MergeOutcome {
	if existing == nil {
		return MergeCreate
	}

	newPriority := source.Priority()
	existingPriority := existing.NameSource.Priority()

	switch {
	case newPriority < existingPriority:
		return MergeOverwrite
	case newPriority == existingPriority && existing.Name != name:
		return MergeFlagConflict
	default:
		return MergeRefreshOnly
	}
}

// TemporaryISINPrefix marks synthesized identifiers so they stay visually and
// programmatically distinguishable from registry-assigned ISINs.
const TemporaryISINPrefix = "TEMP"

// TemporaryISIN synthesizes a deterministic stand-in identifier for a listing
// that has no permanent ISIN yet. Format: TEMP-{ticker}-{MIC}.
func TemporaryISIN(ticker, micCode string) string {
	return fmt.Sprintf("%s-%s-%s", TemporaryISINPrefix, ticker, micCode)
}

// IsTemporaryISIN reports whether isin is a synthesized temporary identifier.
func IsTemporaryISIN(isin string) bool {
	return strings.HasPrefix(isin, TemporaryISINPrefix+"-")
}
