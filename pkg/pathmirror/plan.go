package pathmirror

import (
	"github.com/mirrorlabs/dirmirror/pkg/pathscan"
)

// Plan holds the three disjoint relative-path sets derived from the source
// and destination snapshots. Together the three slices partition the union
// of both key sets: every key appears in exactly one of them.
type Plan struct {
	// OnlyInSource lists files to copy into the destination.
	OnlyInSource []string
	// OnlyInDest lists files to delete from the destination.
	OnlyInDest []string
	// Common lists files present in both trees, candidates for an
	// mtime-based overwrite.
	Common []string
}

// BuildPlan diffs two snapshots into a Plan. Slice order follows map
// iteration and is unspecified; the phases do not depend on it.
func BuildPlan(src, dst *pathscan.Snapshot) Plan {
	var p Plan
	for key := range src.Files {
		if dst.Has(key) {
			p.Common = append(p.Common, key)
		} else {
			p.OnlyInSource = append(p.OnlyInSource, key)
		}
	}
	for key := range dst.Files {
		if !src.Has(key) {
			p.OnlyInDest = append(p.OnlyInDest, key)
		}
	}
	return p
}
