package vcard

import "strings"

// DateParts splits a date-and-or-time value into its year, month and day.
// Missing parts are returned empty, so "--0412" yields ("", "04", "12").
func DateParts(v string) (year, month, day string) {
	d, _, _ := strings.Cut(strings.TrimSpace(v), "T")
	switch {
	case strings.HasPrefix(d, "---"):
		return "", "", d[3:]
	case strings.HasPrefix(d, "--"):
		rest := strings.ReplaceAll(d[2:], "-", "")
		if len(rest) >= 2 {
			month = rest[:2]
		}
		if len(rest) >= 4 {
			day = rest[2:4]
		}
		return "", month, day
	}
	digits := strings.ReplaceAll(d, "-", "")
	if len(digits) >= 4 {
		year = digits[:4]
	}
	if len(digits) >= 6 {
		month = digits[4:6]
	}
	if len(digits) >= 8 {
		day = digits[6:8]
	}
	return year, month, day
}

// dateToJSON converts the basic format used in vCard text to the extended
// format jCard requires.
func dateToJSON(v string) string {
	d, t, hasTime := strings.Cut(v, "T")
	var out string
	switch {
	case strings.HasPrefix(d, "---"), strings.Contains(strings.TrimLeft(d, "-"), "-"):
		out = d
	case strings.HasPrefix(d, "--"):
		rest := d[2:]
		if len(rest) == 4 {
			out = "--" + rest[:2] + "-" + rest[2:]
		} else {
			out = d
		}
	case len(d) == 8:
		out = d[:4] + "-" + d[4:6] + "-" + d[6:]
	default:
		out = d
	}
	if !hasTime {
		return out
	}
	return out + "T" + timeToJSON(t)
}

func timeToJSON(t string) string {
	if strings.Contains(t, ":") {
		return t
	}
	clock, zone := t, ""
	if i := strings.IndexAny(t, "Z+-"); i >= 0 {
		clock, zone = t[:i], t[i:]
	}
	clock = colonize(clock)
	if len(zone) == 5 {
		zone = zone[:3] + ":" + zone[3:]
	}
	return clock + zone
}

func colonize(digits string) string {
	var parts []string
	for len(digits) >= 2 {
		parts = append(parts, digits[:2])
		digits = digits[2:]
	}
	if digits != "" {
		parts = append(parts, digits)
	}
	return strings.Join(parts, ":")
}

// dateFromJSON converts a jCard extended-format date back to the basic
// format.
func dateFromJSON(v string) string {
	d, t, hasTime := strings.Cut(v, "T")
	lead := len(d) - len(strings.TrimLeft(d, "-"))
	d = d[:lead] + strings.ReplaceAll(d[lead:], "-", "")
	if !hasTime {
		return d
	}
	return d + "T" + strings.ReplaceAll(t, ":", "")
}
