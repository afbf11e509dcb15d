package store

import (
	"strconv"
	"strings"
	"time"
)

// CompareTs orders two Slack timestamps of the form "seconds.fraction".
// Comparison is numeric on both halves, so differing fraction widths and
// the "0" sentinel order correctly. Returns -1, 0, or 1.
func CompareTs(a, b string) int {
	as, af := splitTs(a)
	bs, bf := splitTs(b)
	if as != bs {
		if as < bs {
			return -1
		}
		return 1
	}
	if af != bf {
		if af < bf {
			return -1
		}
		return 1
	}
	return 0
}

// TsAfter reports whether a is strictly newer than b.
func TsAfter(a, b string) bool {
	return CompareTs(a, b) > 0
}

// TsTime converts a Slack timestamp to wall-clock time. Returns the zero
// time for empty or malformed input.
func TsTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	sec, frac := splitTs(ts)
	if sec == 0 && frac == 0 {
		return time.Time{}
	}
	return time.Unix(sec, frac*int64(time.Microsecond))
}

// splitTs parses "seconds.fraction" into integer parts. The fraction is
// right-padded to microseconds so "1.5" and "1.500000" compare equal.
func splitTs(ts string) (int64, int64) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, _ := strconv.ParseInt(secPart, 10, 64)
	if len(fracPart) > 6 {
		fracPart = fracPart[:6]
	}
	for len(fracPart) < 6 {
		fracPart += "0"
	}
	frac, _ := strconv.ParseInt(fracPart, 10, 64)
	return sec, frac
}

func containsMention(text, userID string) bool {
	return strings.Contains(text, "<@"+userID+">")
}
