package email

import (
	"fmt"
	"io"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
)

// Message is a plain/html alternative mail. The html part is optional;
// clients that cannot render it fall back to the plain part.
type Message struct {
	From      string
	To        []string
	Subject   string
	PlainBody string
	HtmlBody  string
}

func (m *Message) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\n",
		m.From, strings.Join(m.To, ", "), m.Subject)
	if err != nil {
		return err
	}

	multi := multipart.NewWriter(w)
	_, err = fmt.Fprintf(w, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", multi.Boundary())
	if err != nil {
		return err
	}

	if m.PlainBody != "" {
		if err := writeQuotedPrintablePart(multi, "text/plain", m.PlainBody); err != nil {
			return err
		}
	}
	if m.HtmlBody != "" {
		if err := writeQuotedPrintablePart(multi, "text/html", m.HtmlBody); err != nil {
			return err
		}
	}
	return multi.Close()
}

func writeQuotedPrintablePart(multi *multipart.Writer, contentType string, content string) error {
	part, err := multi.CreatePart(textproto.MIMEHeader{
		"Content-Transfer-Encoding": {"quoted-printable"},
		"Content-Type":              {contentType},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}
