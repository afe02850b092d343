package tracking

import (
	"bytes"
	"strings"
	"testing"
)

func TestPixel(t *testing.T) {
	p := Pixel()
	if len(p) != 43 {
		t.Errorf("len(pixel) = %d, want 43", len(p))
	}
	if !bytes.HasPrefix(p, []byte("GIF89a\x01\x00\x01\x00")) {
		t.Errorf("pixel header = % x", p[:10])
	}
	if p[len(p)-1] != 0x3B {
		t.Error("pixel missing GIF trailer")
	}

	p[0] = 0
	if Pixel()[0] != 'G' {
		t.Error("Pixel() must return a copy")
	}
}

func TestInstrumentPixel(t *testing.T) {
	got := Instrument("<html><body><p>Hi</p></BODY></html>", "https://t.example/", "d1", false)
	want := `<html><body><p>Hi</p><img src="https://t.example/t/open/d1" width="1" height="1" alt="" style="display:none" /></BODY></html>`
	if got != want {
		t.Errorf("Instrument() =\n%s\nwant\n%s", got, want)
	}

	got = Instrument("<p>No body tag</p>", "https://t.example", "d1", false)
	if !strings.HasPrefix(got, "<p>No body tag</p><img ") {
		t.Errorf("pixel not appended: %s", got)
	}
}

func TestInstrumentLinks(t *testing.T) {
	body := `<a href="https://shop.example/sale?a=1&amp;b=2">Sale</a> <a href="mailto:x@y">Mail</a>`

	untouched := Instrument(body, "https://t.example", "d1", false)
	if !strings.Contains(untouched, `href="https://shop.example/sale?a=1&amp;b=2"`) {
		t.Errorf("links rewritten without rewriteLinks: %s", untouched)
	}

	got := Instrument(body, "https://t.example", "d1", true)
	wantLink := `href="https://t.example/t/click/d1?url=https%3A%2F%2Fshop.example%2Fsale%3Fa%3D1%26b%3D2"`
	if !strings.Contains(got, wantLink) {
		t.Errorf("rewritten body missing %s:\n%s", wantLink, got)
	}
	if !strings.Contains(got, `href="mailto:x@y"`) {
		t.Errorf("non-http link changed: %s", got)
	}
}

func TestClickURL(t *testing.T) {
	got := ClickURL("https://t.example", "d 1", "https://a.example/?q=x y")
	want := "https://t.example/t/click/d%201?url=https%3A%2F%2Fa.example%2F%3Fq%3Dx+y"
	if got != want {
		t.Errorf("ClickURL() = %q, want %q", got, want)
	}
}
