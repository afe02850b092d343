package tracking

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// pixelGIF is a 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x21, 0xF9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x04, 0x01, 0x00, 0x3B,
}

// Pixel returns the open-tracking image
func Pixel() []byte {
	out := make([]byte, len(pixelGIF))
	copy(out, pixelGIF)
	return out
}

var (
	hrefPattern    = regexp.MustCompile(`(?i)href="(https?://[^"]+)"`)
	closingBodyTag = regexp.MustCompile(`(?i)</body>`)
)

// OpenURL is the pixel address for a delivery
func OpenURL(baseURL, deliveryID string) string {
	return strings.TrimRight(baseURL, "/") + "/t/open/" + url.PathEscape(deliveryID)
}

// ClickURL is the redirect address for a link in a delivery
func ClickURL(baseURL, deliveryID, target string) string {
	return strings.TrimRight(baseURL, "/") + "/t/click/" + url.PathEscape(deliveryID) + "?url=" + url.QueryEscape(target)
}

// Instrument adds the open pixel to an HTML body and, when rewriteLinks is
// set, routes absolute http(s) links through the click endpoint.
func Instrument(body, baseURL, deliveryID string, rewriteLinks bool) string {
	if rewriteLinks {
		body = hrefPattern.ReplaceAllStringFunc(body, func(m string) string {
			target := html.UnescapeString(hrefPattern.FindStringSubmatch(m)[1])
			return `href="` + html.EscapeString(ClickURL(baseURL, deliveryID, target)) + `"`
		})
	}

	img := `<img src="` + html.EscapeString(OpenURL(baseURL, deliveryID)) + `" width="1" height="1" alt="" style="display:none" />`

	loc := closingBodyTag.FindAllStringIndex(body, -1)
	if len(loc) == 0 {
		return body + img
	}
	i := loc[len(loc)-1][0]
	return body[:i] + img + body[i:]
}
