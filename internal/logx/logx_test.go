package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/r9s-ai/cardq/pkg/config"
)

func TestCompileAccessLogFormat(t *testing.T) {
	t.Run("empty returns nil", func(t *testing.T) {
		f, err := CompileAccessLogFormat("   ")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if f != nil {
			t.Fatalf("expected nil formatter")
		}
	})

	t.Run("unknown variable fails", func(t *testing.T) {
		if _, err := CompileAccessLogFormat("$unknown"); err == nil {
			t.Fatalf("expected error")
		}
		if _, err := CompileAccessLogFormat("cost $"); err == nil {
			t.Fatalf("expected error for bare dollar")
		}
	})

	t.Run("render with missing var uses dash", func(t *testing.T) {
		f, err := CompileAccessLogFormat("$method $path $report")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		out := f.Format(time.Unix(0, 0), 207, 1500*time.Millisecond, "127.0.0.1", "REPORT", "/dav/book/", nil, false)
		if out != "REPORT /dav/book/ -" {
			t.Fatalf("unexpected out: %q", out)
		}
	})

	t.Run("fields fill variables", func(t *testing.T) {
		f, err := CompileAccessLogFormat("$$ $status matched=$matched")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		out := f.Format(time.Unix(0, 0), 207, time.Second, "", "", "", map[string]any{"matched": 3}, false)
		if out != "$ 207 matched=3" {
			t.Fatalf("unexpected out: %q", out)
		}
	})
}

func TestResolveAccessLogFormat(t *testing.T) {
	got, err := ResolveAccessLogFormat("", "CARDQ_MINIMAL")
	if err != nil || !strings.Contains(got, "$report") {
		t.Fatalf("preset=%q err=%v", got, err)
	}
	if got, _ := ResolveAccessLogFormat("$path", "cardq_minimal"); got != "$path" {
		t.Fatalf("explicit format should win, got %q", got)
	}
	if _, err := ResolveAccessLogFormat("", "nope"); err == nil {
		t.Fatalf("expected error")
	}
	for _, preset := range []string{"cardq_combined", "cardq_minimal"} {
		format, _ := ResolveAccessLogFormat("", preset)
		if _, err := CompileAccessLogFormat(format); err != nil {
			t.Fatalf("preset %s does not compile: %v", preset, err)
		}
	}
}

func TestColorizeStatusWith(t *testing.T) {
	if got := ColorizeStatusWith(404, false); got != "404" {
		t.Fatalf("plain=%q", got)
	}
	if got := ColorizeStatusWith(500, true); !strings.HasPrefix(got, ansiRed) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("colored=%q", got)
	}
}

func TestFormatRequestLineWithColor(t *testing.T) {
	out := FormatRequestLineWithColor(time.Unix(0, 0).UTC(), 200, time.Millisecond, "10.0.0.1", "GET", "/dav/a.vcf",
		map[string]any{"request_id": "r1", "dialect": "vcard4", "empty": ""}, false)
	if !strings.HasSuffix(out, "| 200 | 1ms | 10.0.0.1 | GET /dav/a.vcf dialect=vcard4 request_id=r1") {
		t.Fatalf("out=%q", out)
	}
}

func TestNew_JSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingConfig{Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	l.Debug().Str("k", "v").Msg("hello")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if rec["message"] != "hello" || rec["k"] != "v" || rec["level"] != "debug" {
		t.Fatalf("rec=%v", rec)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LoggingConfig{Format: "console", Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") || strings.HasPrefix(out, "{") {
		t.Fatalf("out=%q", out)
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected format error")
	}
}
