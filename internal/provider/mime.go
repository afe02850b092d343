package provider

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// email is an outgoing message before serialization
type email struct {
	From      mail.Address
	To        string
	Subject   string
	Text      string
	HTML      string
	MessageID string
	Date      time.Time
}

// newEmail prepares headers and bodies; HTML bodies get a derived text part
func newEmail(from mail.Address, msg *Message) *email {
	e := &email{
		From:      from,
		To:        msg.To,
		Subject:   msg.Subject,
		MessageID: fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(from.Address)),
		Date:      time.Now(),
	}
	if msg.HTML {
		e.HTML = msg.Body
		e.Text = HTMLToText(msg.Body)
	} else {
		e.Text = msg.Body
	}
	return e
}

// Bytes renders the message in RFC 5322 form with CRLF line endings
func (e *email) Bytes() []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s\r\n", e.From.String()))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", e.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", e.Date.Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: %s\r\n", e.MessageID))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if e.HTML == "" {
		writePart(&buf, "text/plain", e.Text)
		return buf.Bytes()
	}

	boundary := uuid.New().String()
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	writePart(&buf, "text/plain", e.Text)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	writePart(&buf, "text/html", e.HTML)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return buf.Bytes()
}

func writePart(buf *bytes.Buffer, contentType, body string) {
	buf.WriteString(fmt.Sprintf("Content-Type: %s; charset=utf-8\r\n", contentType))
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	w := quotedprintable.NewWriter(buf)
	w.Write([]byte(body))
	w.Close()
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// HTMLToText strips markup, keeping text content and rough line structure
func HTMLToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			out := strings.ReplaceAll(b.String(), "\r\n", "\n")
			lines := strings.Split(out, "\n")
			for i, l := range lines {
				lines[i] = strings.Join(strings.Fields(l), " ")
			}
			return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br":
				b.WriteString("\n")
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n")
			}
		}
	}
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
