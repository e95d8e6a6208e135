package textutil

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPercent renders a fraction (0.125) as a percentage ("12.50%").
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}

// JoinIDs renders ids as a comma-separated list, suitable for a query string.
func JoinIDs(ids []int64) string {
	strs := make([]string, len(ids))
	for i, v := range ids {
		strs[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(strs, ",")
}

// ParseIDs is the inverse of JoinIDs.  An empty string is an empty list.
// Blank elements ("1,,2") parse as zero, which callers treat as "unset".
func ParseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// Slugify makes a lowercase, dash-separated name, for export file names.
func Slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
