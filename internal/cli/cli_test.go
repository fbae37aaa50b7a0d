package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/r9s-ai/cardq/internal/version"
	"github.com/r9s-ai/cardq/pkg/cardclient"
	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/davxml"
	"github.com/r9s-ai/cardq/pkg/httpclient/httpclienttest"
)

const multistatus = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
<d:response><d:href>/dav/book/a.vcf</d:href><d:propstat><d:prop>
<d:getetag>"abc"</d:getetag>
<card:address-data>BEGIN:VCARD&#13;
VERSION:3.0&#13;
FN:A&#13;
END:VCARD&#13;
</card:address-data></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
<d:response><d:href>/dav/book/gone.vcf</d:href><d:status>HTTP/1.1 404 Not Found</d:status></d:response>
</d:multistatus>`

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func withFakeClient(t *testing.T, fake *httpclienttest.FakeDoer) {
	t.Helper()
	orig := newClientFn
	newClientFn = func(base string) (*cardclient.Client, error) {
		return cardclient.New(base, cardclient.WithHTTPClient(fake))
	}
	t.Cleanup(func() { newClientFn = orig })
}

func TestVersionCmdOutput(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("execute version cmd: %v", err)
	}
	if got, want := strings.TrimSpace(out), version.Get().String(); got != want {
		t.Fatalf("version output=%q want=%q", got, want)
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, sub := range []string{"serve", "validate", "convert", "query", "multiget", "mkbook", "browse", "version"} {
		if _, _, err := root.Find([]string{sub}); err != nil {
			t.Fatalf("find %s subcommand: %v", sub, err)
		}
	}
}

func TestExecute_ReportsErrors(t *testing.T) {
	var stderr bytes.Buffer
	if code := execute([]string{"convert", "-", "--to", "vcard9"}, &stderr); code != 1 {
		t.Fatalf("exit code=%d", code)
	}
	if !strings.Contains(stderr.String(), "unknown dialect") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestServeCmd_PassesConfig(t *testing.T) {
	orig := runServerFn
	defer func() { runServerFn = orig }()
	var got string
	runServerFn = func(p string) error {
		got = p
		return nil
	}
	if _, err := runCmd(t, "", "serve", "-c", "custom.yaml"); err != nil {
		t.Fatalf("serve err=%v", err)
	}
	if got != "custom.yaml" {
		t.Fatalf("config path=%q", got)
	}
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.vcf")
	noUID := "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Dave\r\nEND:VCARD\r\n"
	if err := os.WriteFile(path, []byte(noUID), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCmd(t, "", "validate", path)
	if err != nil {
		t.Fatalf("validate err=%v", err)
	}
	if !strings.Contains(out, "UID") || !strings.Contains(out, path+": repaired") {
		t.Fatalf("out=%q", out)
	}
	unchanged, _ := os.ReadFile(path)
	if string(unchanged) != noUID {
		t.Fatalf("file must not change without --write")
	}

	if _, err := runCmd(t, "", "validate", "--strict", path); err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("strict err=%v", err)
	}

	if _, err := runCmd(t, "", "validate", "--write", path); err != nil {
		t.Fatalf("validate --write err=%v", err)
	}
	repaired, _ := os.ReadFile(path)
	if !bytes.Contains(repaired, []byte("UID:")) {
		t.Fatalf("repaired file=%q", repaired)
	}

	out, err = runCmd(t, "BEGIN:VCARD\r\nVERSION:4.0\r\nUID:x\r\nFN:X\r\nEND:VCARD\r\n", "validate", "-")
	if err != nil || !strings.Contains(out, "-: ok") {
		t.Fatalf("stdin out=%q err=%v", out, err)
	}
	if _, err := runCmd(t, "not a card", "validate", "-"); err == nil {
		t.Fatalf("expected rejection for garbage")
	}
}

func TestConvertCmd(t *testing.T) {
	card := "BEGIN:VCARD\r\nVERSION:3.0\r\nUID:x\r\nFN:X\r\nNICKNAME:ex\r\nEMAIL:x@example.com\r\nEND:VCARD\r\n"
	out, err := runCmd(t, card, "convert", "-", "--to", "jcard", "--props", "EMAIL")
	if err != nil {
		t.Fatalf("convert err=%v", err)
	}
	if !strings.HasPrefix(out, `["vcard"`) || !strings.Contains(out, "x@example.com") || strings.Contains(out, "nickname") {
		t.Fatalf("out=%q", out)
	}
	out, err = runCmd(t, card, "convert", "-", "--to", "4.0")
	if err != nil || !strings.Contains(out, "VERSION:4.0") {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestParsePropFilter(t *testing.T) {
	pf, err := parsePropFilter("email:!ends-with:@example.com:8080")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	tm := pf.TextMatches[0]
	if pf.Name != "EMAIL" || tm.MatchType != cardfilter.EndsWith || !tm.Negate || tm.Value != "@example.com:8080" {
		t.Fatalf("filter=%+v", pf)
	}
	pf, err = parsePropFilter("TEL:undefined")
	if err != nil || !pf.IsNotDefined {
		t.Fatalf("filter=%+v err=%v", pf, err)
	}
	for _, bad := range []string{"", "FN", "FN:fuzzy:x", ":contains:x"} {
		if _, err := parsePropFilter(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestQueryCmd(t *testing.T) {
	fake := httpclienttest.NewFakeDoer(t, httpclienttest.NewXMLResponse(http.StatusMultiStatus, multistatus))
	withFakeClient(t, fake)

	out, err := runCmd(t, "", "query", "https://cards.example/dav/book/",
		"-f", "FN:contains:a", "-f", "EMAIL:undefined", "--test", "allof", "--limit", "5")
	if err != nil {
		t.Fatalf("query err=%v", err)
	}
	for _, want := range []string{`/dav/book/a.vcf  "abc"`, "FN:A\n", "/dav/book/gone.vcf  404", "2 result(s)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}

	req := fake.Requests()[0]
	if req.Method != "REPORT" || req.URL.String() != "https://cards.example/dav/book/" || req.Header.Get("Depth") != "1" {
		t.Fatalf("request=%s %s depth=%q", req.Method, req.URL, req.Header.Get("Depth"))
	}
	rep, err := davxml.DecodeReport(bytes.NewReader(fake.Body(0)))
	if err != nil || rep.Query == nil {
		t.Fatalf("sent body does not decode: %v", err)
	}
	q := rep.Query
	if q.Filter.Test != cardfilter.AllOf || len(q.Filter.Filters) != 2 || q.Limit != 5 {
		t.Fatalf("query=%+v", q)
	}
}

func TestMultigetCmd(t *testing.T) {
	fake := httpclienttest.NewFakeDoer(t, httpclienttest.NewXMLResponse(http.StatusMultiStatus, multistatus))
	withFakeClient(t, fake)

	if _, err := runCmd(t, "", "multiget", "https://cards.example/dav/book/", "/dav/book/a.vcf", "/dav/book/gone.vcf"); err != nil {
		t.Fatalf("multiget err=%v", err)
	}
	rep, err := davxml.DecodeReport(bytes.NewReader(fake.Body(0)))
	if err != nil || rep.Multiget == nil {
		t.Fatalf("sent body does not decode: %v", err)
	}
	if got := rep.Multiget.Paths; len(got) != 2 || got[1] != "/dav/book/gone.vcf" {
		t.Fatalf("hrefs=%v", got)
	}
	if _, err := runCmd(t, "", "multiget", "cards.example/dav/", "/a.vcf"); err == nil {
		t.Fatalf("relative url must be rejected")
	}
}

func TestMkbookAndBrowse(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "missing.yaml")
	data := filepath.Join(dir, "data")

	out, err := runCmd(t, "", "mkbook", "/family", "--name", "Family", "--dir", data, "-c", cfg)
	if err != nil {
		t.Fatalf("mkbook err=%v", err)
	}
	if !strings.Contains(out, "created address book /family") {
		t.Fatalf("out=%q", out)
	}
	if _, err := os.Stat(filepath.Join(data, "family", ".addressbook.yaml")); err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	if _, err := runCmd(t, "", "mkbook", "/family", "--dir", data, "-c", cfg); err == nil {
		t.Fatalf("second mkbook must fail")
	}

	orig := runBrowserFn
	defer func() { runBrowserFn = orig }()
	var start string
	var kind cardreport.ResourceKind
	runBrowserFn = func(ctx context.Context, st cardreport.Store, p string, in io.Reader, out io.Writer) error {
		start = p
		res, err := st.Stat(ctx, "/family")
		if err != nil {
			return err
		}
		kind = res.Kind
		return nil
	}
	if _, err := runCmd(t, "", "browse", "/family", "--dir", data, "-c", cfg); err != nil {
		t.Fatalf("browse err=%v", err)
	}
	if start != "/family" || kind != cardreport.KindAddressBook {
		t.Fatalf("start=%q kind=%v", start, kind)
	}
}
