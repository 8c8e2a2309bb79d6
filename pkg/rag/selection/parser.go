package selection

import (
	"regexp"
	"strconv"
	"strings"
)

// The strict list stays on the marker's line so numbers in the prose after it are ignored.
var (
	strictSelection = regexp.MustCompile(`(?i)(?:SELECTED(?:_DOCUMENTS)?|DOCUMENTS_SELECTIONNES|TABLEAUX_SELECTIONNES|selected indices)[ \t]*:[ \t]*\[?([0-9, \t]+)\]?`)
	looseNumber     = regexp.MustCompile(`\b([1-9]|1[0-5])\b`)
)

const looseTokenLimit = 5

// ParseIndices turns a selection response into distinct 0-based indices below
// catalogSize, keeping response order and at most maxSelected entries.
func ParseIndices(response string, catalogSize, maxSelected int) []int {
	var tokens []string
	if m := strictSelection.FindStringSubmatch(response); m != nil {
		tokens = strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	} else {
		tokens = looseNumber.FindAllString(response, looseTokenLimit)
	}

	seen := make(map[int]bool, len(tokens))
	indices := []int{}
	for _, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			continue
		}
		idx := n - 1
		if idx < 0 || idx >= catalogSize || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
		if len(indices) == maxSelected {
			break
		}
	}
	return indices
}
