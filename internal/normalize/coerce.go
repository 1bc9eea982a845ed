package normalize

import (
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the formats extraction output shows up in. First match
// wins.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// Date coerces a value to an ISO-8601 date. Unparsable input yields "".
func Date(s string) string {
	s = Clean(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// Num coerces a value to a number pointer. Strings may carry grouping
// commas or a currency marker. Unparsable input yields nil.
func Num(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(strings.ToUpper(s), "AED")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
