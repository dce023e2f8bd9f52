package block

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Lines renders a snapshot as one line per block, in reading order.
// Metadata keys are sorted so that equal snapshots always render equally.
func Lines(blocks []Block) []string {
	sorted := Clone(blocks)
	Sort(sorted)

	lines := make([]string, 0, len(sorted))
	for _, b := range sorted {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d %s %s", b.Order, b.Type, b.ID)
		if b.IsFixed {
			sb.WriteString(" fixed")
		}
		sb.WriteString(" " + strconv.Quote(b.Content))
		keys := make([]string, 0, len(b.Metadata))
		for k := range b.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, b.Metadata[k])
		}
		lines = append(lines, sb.String()+"\n")
	}
	return lines
}

// Changed reports whether two snapshots differ.
func Changed(a, b []Block) bool {
	la, lb := Lines(a), Lines(b)
	if len(la) != len(lb) {
		return true
	}
	for i := range la {
		if la[i] != lb[i] {
			return true
		}
	}
	return false
}

// Diff returns a unified diff between two snapshots, empty when they are equal.
func Diff(a, b []Block) string {
	diff := difflib.UnifiedDiff{
		A:        Lines(a),
		B:        Lines(b),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
