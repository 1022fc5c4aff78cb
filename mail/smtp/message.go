package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/bulkmail/mail"
)

// attachment is a regular file read into memory.
type attachment struct {
	name string
	data []byte
}

// loadAttachments reads every path that names a regular file. Missing paths,
// directories and other non-regular entries are skipped.
func loadAttachments(paths []string) ([]attachment, error) {
	var out []attachment
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read attachment %s", p)
		}
		out = append(out, attachment{name: filepath.Base(p), data: data})
	}
	return out, nil
}

// buildMessage renders email as an RFC 5322 message.
//
// A message with attachments is multipart/mixed. A message with both a text and
// an HTML body carries them as multipart/alternative. Otherwise the body is a
// single quoted-printable part.
func buildMessage(email mail.Email, date time.Time) ([]byte, error) {
	files, err := loadAttachments(email.Attachments)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", formatAddress(email.From))
	if len(email.To) > 0 {
		writeHeader(&buf, "To", formatAddressList(email.To))
	}
	if len(email.Cc) > 0 {
		writeHeader(&buf, "Cc", formatAddressList(email.Cc))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-Id", messageID(email.From.Address))
	writeHeader(&buf, "MIME-Version", "1.0")

	keys := make([]string, 0, len(email.Headers))
	for k := range email.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, k, email.Headers[k])
	}

	if len(files) == 0 {
		if err := writeBody(email, headerWriter{&buf}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	if err := writeBody(email, partWriter{mw}); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := writeAttachment(mw, f); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart message")
	}
	return buf.Bytes(), nil
}

// entityWriter starts a MIME entity with the given header and returns its body writer.
type entityWriter interface {
	entity(h textproto.MIMEHeader) (io.Writer, error)
}

// headerWriter writes the entity headers straight into the top-level message.
type headerWriter struct {
	buf *bytes.Buffer
}

func (w headerWriter) entity(h textproto.MIMEHeader) (io.Writer, error) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(w.buf, k, h.Get(k))
	}
	w.buf.WriteString("\r\n")
	return w.buf, nil
}

type partWriter struct {
	mw *multipart.Writer
}

func (w partWriter) entity(h textproto.MIMEHeader) (io.Writer, error) {
	return w.mw.CreatePart(h)
}

func writeBody(email mail.Email, w entityWriter) error {
	if email.HTML == "" || email.Body == "" {
		contentType, text := "text/plain; charset=UTF-8", email.Body
		if email.HTML != "" {
			contentType, text = "text/html; charset=UTF-8", email.HTML
		}
		return writeText(w, contentType, text)
	}

	var alt bytes.Buffer
	aw := multipart.NewWriter(&alt)
	if err := writeText(partWriter{aw}, "text/plain; charset=UTF-8", email.Body); err != nil {
		return err
	}
	if err := writeText(partWriter{aw}, "text/html; charset=UTF-8", email.HTML); err != nil {
		return err
	}
	if err := aw.Close(); err != nil {
		return errors.Wrap(err, "failed to close alternative part")
	}

	body, err := w.entity(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + aw.Boundary()},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create alternative part")
	}
	_, err = body.Write(alt.Bytes())
	return errors.Wrap(err, "failed to write alternative part")
}

func writeText(w entityWriter, contentType, text string) error {
	body, err := w.entity(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create text part")
	}

	qp := quotedprintable.NewWriter(body)
	if _, err := qp.Write([]byte(text)); err != nil {
		return errors.Wrap(err, "failed to encode text part")
	}
	return errors.Wrap(qp.Close(), "failed to encode text part")
}

func writeAttachment(mw *multipart.Writer, f attachment) error {
	mediaType, params, err := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(f.name)))
	if err != nil {
		mediaType, params = "application/octet-stream", map[string]string{}
	}
	params["name"] = f.name

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(mediaType, params)},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": f.name})},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create attachment part %s", f.name)
	}

	enc := base64.StdEncoding.EncodeToString(f.data)
	for len(enc) > 76 {
		if _, err := io.WriteString(body, enc[:76]+"\r\n"); err != nil {
			return errors.Wrapf(err, "failed to write attachment %s", f.name)
		}
		enc = enc[76:]
	}
	_, err = io.WriteString(body, enc+"\r\n")
	return errors.Wrapf(err, "failed to write attachment %s", f.name)
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

// messageID builds a unique Message-Id in the sender's domain.
func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// formatAddress formats a single address, encoding a non-ASCII display name.
func formatAddress(addr mail.Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	return (&netmail.Address{Name: addr.Name, Address: addr.Address}).String()
}

// formatAddressList formats a list of addresses.
func formatAddressList(addrs []mail.Address) string {
	formatted := make([]string, len(addrs))
	for i, addr := range addrs {
		formatted[i] = formatAddress(addr)
	}
	return strings.Join(formatted, ", ")
}

// envelopeRecipients extracts bare addresses for RCPT TO.
func envelopeRecipients(email mail.Email) []string {
	var out []string
	for _, list := range [][]mail.Address{email.To, email.Cc, email.Bcc} {
		for _, addr := range list {
			if addr.Address != "" {
				out = append(out, addr.Address)
			}
		}
	}
	return out
}
