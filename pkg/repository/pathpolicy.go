package repository

import (
	"path/filepath"
	"strings"
	"time"
)

// Policy path selectors. The selector chooses the granularity of the
// time-bucketed directory segment appended to an item's path.
const (
	PolicyPathNone    = ""
	PolicyPathYearly  = "1"
	PolicyPathMonthly = "2"
	PolicyPathDaily   = "3"
)

// PolicyPath formats the time-bucket segment for the given selector.
// Unknown selectors behave like PolicyPathNone.
//
// The result is computed once at item creation and frozen on the item
// record. Later lookups, deletes and renames must reuse the stored
// value, never recompute it, so items remain reachable after a day or
// month boundary passes.
func PolicyPath(policyPathID string, now time.Time) string {
	switch policyPathID {
	case PolicyPathYearly:
		return now.Format("2006")
	case PolicyPathMonthly:
		return now.Format("2006-01")
	case PolicyPathDaily:
		return now.Format("2006-01-02")
	default:
		return ""
	}
}

// RelativeDir builds the slash-separated directory prefix for an item
// from its custom path segments and frozen policy path. Empty segments
// are skipped; every emitted segment ends with "/". The result is ""
// when all segments are empty, so prefix+itemID is always a valid key.
func RelativeDir(custom1, custom2, custom3, policyPath string) string {
	var sb strings.Builder
	for _, segment := range []string{custom1, custom2, custom3, policyPath} {
		if segment == "" {
			continue
		}
		sb.WriteString(segment)
		sb.WriteString("/")
	}
	return sb.String()
}

// PhysicalDir builds the on-disk directory for an item under the
// repository root, using the platform separator.
func PhysicalDir(root, custom1, custom2, custom3, policyPath string) string {
	dir := root
	for _, segment := range []string{custom1, custom2, custom3, policyPath} {
		if segment == "" {
			continue
		}
		dir = filepath.Join(dir, segment)
	}
	return dir
}
