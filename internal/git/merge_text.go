package git

// merge_text.go - Line-level three-way merge of note text

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// hunk replaces base lines [start, end) with lines on one side of the merge.
type hunk struct {
	ours       bool
	start, end int
	lines      []string
}

// splitMergeLines splits s after every newline. The last line keeps no newline when s
// does not end with one.
func splitMergeLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func sideHunks(base, side []string, ours bool) []hunk {
	var hunks []hunk
	for _, op := range difflib.NewMatcherWithJunk(base, side, false, nil).GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		hunks = append(hunks, hunk{ours: ours, start: op.I1, end: op.I2, lines: side[op.J1:op.J2]})
	}
	return hunks
}

// mergeText merges the edits ours and theirs made to base line by line. Edits that
// overlap or touch the same base position conflict and are written between
// markers; the rest apply cleanly. clean reports whether no region conflicted.
func mergeText(base, ours, theirs, theirsLabel string) (merged string, clean bool) {
	baseLines := splitMergeLines(base)
	hunks := append(sideHunks(baseLines, splitMergeLines(ours), true), sideHunks(baseLines, splitMergeLines(theirs), false)...)
	sort.SliceStable(hunks, func(i, j int) bool {
		if hunks[i].start != hunks[j].start {
			return hunks[i].start < hunks[j].start
		}
		return hunks[i].end < hunks[j].end
	})

	var out strings.Builder
	clean = true
	pos := 0
	for i := 0; i < len(hunks); {
		start, end := hunks[i].start, hunks[i].end
		j := i + 1
		for ; j < len(hunks) && hunks[j].start <= end; j++ {
			if hunks[j].end > end {
				end = hunks[j].end
			}
		}
		group := hunks[i:j]
		i = j

		writeLines(&out, baseLines[pos:start])
		pos = end

		oursText, oursTouched := applyHunks(baseLines, group, start, end, true)
		theirsText, theirsTouched := applyHunks(baseLines, group, start, end, false)
		switch {
		case !theirsTouched, oursText == theirsText:
			out.WriteString(oursText)
		case !oursTouched:
			out.WriteString(theirsText)
		default:
			clean = false
			out.WriteString("<<<<<<< HEAD\n")
			out.WriteString(withNewline(oursText))
			out.WriteString("=======\n")
			out.WriteString(withNewline(theirsText))
			out.WriteString(">>>>>>> " + theirsLabel + "\n")
		}
	}
	writeLines(&out, baseLines[pos:])
	return out.String(), clean
}

// applyHunks renders base[start:end) with one side's hunks of a group applied.
func applyHunks(base []string, group []hunk, start, end int, ours bool) (string, bool) {
	var b strings.Builder
	touched := false
	pos := start
	for _, h := range group {
		if h.ours != ours {
			continue
		}
		touched = true
		writeLines(&b, base[pos:h.start])
		writeLines(&b, h.lines)
		pos = h.end
	}
	writeLines(&b, base[pos:end])
	return b.String(), touched
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
	}
}

// mergeableText reports whether every side is text a line merge can handle.
func mergeableText(texts ...string) bool {
	for _, t := range texts {
		if strings.IndexByte(t, 0) >= 0 {
			return false
		}
	}
	return true
}
