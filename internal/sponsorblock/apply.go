package sponsorblock

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/sonroyaalmerol/calliope/internal/gateway"
	"github.com/sonroyaalmerol/calliope/internal/utils"
)

// MergeSegments sorts segments by start and joins overlapping ones, keeping
// the category of the earliest. The input is not modified.
func MergeSegments(segs []gateway.Segment) []gateway.Segment {
	if len(segs) == 0 {
		return nil
	}
	sorted := slices.Clone(segs)
	slices.SortFunc(sorted, func(a, b gateway.Segment) int { return cmp.Compare(a.Start, b.Start) })

	out := []gateway.Segment{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}

// Summarize describes a SegmentsLoaded event, e.g. "3 segments, 1:12 skippable".
func Summarize(segs []gateway.Segment) string {
	merged := MergeSegments(segs)
	if len(merged) == 0 {
		return ""
	}
	var total int64
	for _, s := range merged {
		total += s.End - s.Start
	}
	noun := "segments"
	if len(segs) == 1 {
		noun = "segment"
	}
	return fmt.Sprintf("%d %s, %s skippable", len(segs), noun, utils.PrettyMillis(total))
}

// Describe renders one skipped segment, e.g. "skipped sponsor (0:12-0:45)".
func Describe(s gateway.Segment) string {
	return fmt.Sprintf("skipped %s (%s-%s)", strings.ReplaceAll(s.Category, "_", " "),
		utils.PrettyMillis(s.Start), utils.PrettyMillis(s.End))
}
