package logx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[97;42m"
	ansiCyan   = "\x1b[97;46m"
	ansiYellow = "\x1b[90;43m"
	ansiRed    = "\x1b[97;41m"
)

// ColorizeStatusWith renders status, wrapped in a gin-like color block when
// color is set.
func ColorizeStatusWith(status int, color bool) string {
	s := strconv.Itoa(status)
	if !color {
		return s
	}
	var c string
	switch {
	case status >= 500:
		c = ansiRed
	case status >= 400:
		c = ansiYellow
	case status >= 300:
		c = ansiCyan
	default:
		c = ansiGreen
	}
	return c + " " + s + " " + ansiReset
}

// FormatRequestLineWithColor is the access line used when no format is
// configured. Fields are appended as sorted key=value pairs.
func FormatRequestLineWithColor(ts time.Time, status int, latency time.Duration, clientIP, method, path string, fields map[string]any, color bool) string {
	var b strings.Builder
	b.WriteString(ts.Format("2006/01/02 - 15:04:05"))
	b.WriteString(" | ")
	b.WriteString(ColorizeStatusWith(status, color))
	b.WriteString(" | ")
	b.WriteString(latency.String())
	b.WriteString(" | ")
	b.WriteString(clientIP)
	b.WriteString(" | ")
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(path)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(fmt.Sprintf("%v", fields[k]))
		if v == "" || v == "<nil>" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}
