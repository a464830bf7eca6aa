package pathmirror

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorlabs/dirmirror/pkg/pathscan"
)

func TestBuildPlanPartitionsKeys(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	now := time.Now()

	createFile(t, filepath.Join(srcRoot, "only-src.txt"), "a", now)
	createFile(t, filepath.Join(srcRoot, "shared.txt"), "b", now)
	createFile(t, filepath.Join(dstRoot, "shared.txt"), "b", now)
	createFile(t, filepath.Join(dstRoot, "only-dst.txt"), "c", now)

	src, err := pathscan.Scan(context.Background(), srcRoot)
	if err != nil {
		t.Fatalf("source scan failed: %v", err)
	}
	dst, err := pathscan.Scan(context.Background(), dstRoot)
	if err != nil {
		t.Fatalf("destination scan failed: %v", err)
	}

	plan := BuildPlan(src, dst)

	if len(plan.OnlyInSource) != 1 || plan.OnlyInSource[0] != "only-src.txt" {
		t.Errorf("unexpected OnlyInSource: %v", plan.OnlyInSource)
	}
	if len(plan.OnlyInDest) != 1 || plan.OnlyInDest[0] != "only-dst.txt" {
		t.Errorf("unexpected OnlyInDest: %v", plan.OnlyInDest)
	}
	if len(plan.Common) != 1 || plan.Common[0] != "shared.txt" {
		t.Errorf("unexpected Common: %v", plan.Common)
	}

	// Every key from either snapshot lands in exactly one set.
	seen := make(map[string]int)
	for _, set := range [][]string{plan.OnlyInSource, plan.OnlyInDest, plan.Common} {
		for _, key := range set {
			seen[key]++
		}
	}
	for key := range src.Files {
		if seen[key] != 1 {
			t.Errorf("source key %q appears in %d sets", key, seen[key])
		}
	}
	for key := range dst.Files {
		if seen[key] != 1 {
			t.Errorf("destination key %q appears in %d sets", key, seen[key])
		}
	}
	if len(seen) != 3 {
		t.Errorf("plan contains unknown keys: %v", seen)
	}
}

func TestBuildPlanEmptySnapshots(t *testing.T) {
	src, err := pathscan.Scan(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("source scan failed: %v", err)
	}
	dst, err := pathscan.Scan(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("destination scan failed: %v", err)
	}

	plan := BuildPlan(src, dst)
	if len(plan.OnlyInSource)+len(plan.OnlyInDest)+len(plan.Common) != 0 {
		t.Errorf("expected an empty plan, got %+v", plan)
	}
}
