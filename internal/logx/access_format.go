package logx

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var accessLogFormatPresets = map[string]string{
	"cardq_combined": "$time_local | $status | $latency | $client_ip | $method $path | request_id=$request_id depth=$depth report=$report candidates=$candidates matched=$matched dialect=$dialect validation=$validation user_agent=$user_agent",
	"cardq_minimal":  "$time_local | $status | $latency | $method $path | request_id=$request_id report=$report matched=$matched",
}

// accessLogVars are the names a format may reference. The first seven come
// from the request itself, the rest from handler fields.
var accessLogVars = []string{
	"time_local", "status", "latency", "latency_ms", "client_ip", "method", "path",
	"request_id", "user_agent", "depth", "report", "candidates", "matched", "dialect", "validation",
}

// segment is literal text, or a variable reference when variable is set.
type segment struct {
	text     string
	variable string
}

// AccessLogFormatter renders access lines from a compiled $var template.
type AccessLogFormatter struct {
	segments []segment
}

// ResolveAccessLogFormat returns format, or the named preset when format is
// blank.
func ResolveAccessLogFormat(format string, preset string) (string, error) {
	if strings.TrimSpace(format) != "" {
		return format, nil
	}
	name := strings.ToLower(strings.TrimSpace(preset))
	if name == "" {
		return "", nil
	}
	out, ok := accessLogFormatPresets[name]
	if !ok {
		return "", fmt.Errorf("invalid access_log_format_preset: %q", preset)
	}
	return out, nil
}

// CompileAccessLogFormat parses format. "$$" is a literal dollar. An empty
// format yields a nil formatter.
func CompileAccessLogFormat(format string) (*AccessLogFormatter, error) {
	if strings.TrimSpace(format) == "" {
		return nil, nil
	}
	f := &AccessLogFormatter{}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			f.segments = append(f.segments, segment{text: text.String()})
			text.Reset()
		}
	}

	rest := format
	for {
		i := strings.IndexByte(rest, '$')
		if i < 0 {
			text.WriteString(rest)
			break
		}
		text.WriteString(rest[:i])
		rest = rest[i+1:]
		if strings.HasPrefix(rest, "$") {
			text.WriteByte('$')
			rest = rest[1:]
			continue
		}
		n := varNameLen(rest)
		if n == 0 {
			return nil, fmt.Errorf("invalid access_log_format: missing variable name after '$' at pos %d", len(format)-len(rest)-1)
		}
		name := rest[:n]
		if !slices.Contains(accessLogVars, name) {
			return nil, fmt.Errorf("invalid access_log_format: unknown variable $%s", name)
		}
		flush()
		f.segments = append(f.segments, segment{variable: name})
		rest = rest[n:]
	}
	flush()
	return f, nil
}

func varNameLen(s string) int {
	n := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if n < 0 {
		return len(s)
	}
	return n
}

// Format renders one line. Unset variables print as "-".
func (f *AccessLogFormatter) Format(
	ts time.Time,
	status int,
	latency time.Duration,
	clientIP string,
	method string,
	path string,
	fields map[string]any,
	color bool,
) string {
	if f == nil {
		return ""
	}
	value := func(name string) string {
		switch name {
		case "time_local":
			return ts.Format("2006/01/02 - 15:04:05")
		case "status":
			return ColorizeStatusWith(status, color)
		case "latency":
			return latency.String()
		case "latency_ms":
			return strconv.FormatInt(latency.Milliseconds(), 10)
		case "client_ip":
			return clientIP
		case "method":
			return method
		case "path":
			return path
		}
		if v, ok := fields[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}

	var b strings.Builder
	for _, seg := range f.segments {
		if seg.variable == "" {
			b.WriteString(seg.text)
			continue
		}
		v := strings.TrimSpace(value(seg.variable))
		if v == "" {
			v = "-"
		}
		b.WriteString(v)
	}
	return b.String()
}
