package graph

import (
	"strings"

	"kumorfm/internal/inspector"
)

// textLengthThreshold is the average string length above which a column is
// treated as free text rather than a categorical value.
const textLengthThreshold = 40

// InferStype guesses the semantic type of a column from its name and a
// sample of decoded values. The guess can always be overridden through a
// metadata patch.
func InferStype(name string, values []any) Stype {
	if looksLikeIDColumn(name) {
		return StypeID
	}
	if looksLikeTimeColumn(name) {
		return StypeTimestamp
	}

	var (
		numeric  int
		boolean  int
		stamps   int
		textual  int
		totalLen int
		nonNil   int
	)
	for _, v := range values {
		if v == nil {
			continue
		}
		nonNil++
		switch val := v.(type) {
		case int64, float64:
			numeric++
		case bool:
			boolean++
		case string:
			if _, ok := inspector.ParseTimestamp(val); ok {
				stamps++
			} else {
				textual++
				totalLen += len(val)
			}
		}
	}
	if nonNil == 0 {
		return StypeCategorical
	}

	switch {
	case stamps == nonNil:
		return StypeTimestamp
	case numeric == nonNil:
		return StypeNumerical
	case boolean == nonNil:
		return StypeCategorical
	case textual > 0 && totalLen/textual > textLengthThreshold:
		return StypeText
	default:
		return StypeCategorical
	}
}

func looksLikeIDColumn(name string) bool {
	lower := strings.ToLower(name)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "_key")
}

func looksLikeTimeColumn(name string) bool {
	lower := strings.ToLower(name)
	switch lower {
	case "time", "date", "timestamp", "datetime":
		return true
	}
	return strings.HasSuffix(lower, "_at") || strings.HasSuffix(lower, "_time") ||
		strings.HasSuffix(lower, "_date")
}
