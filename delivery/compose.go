package delivery

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
)

// Composed is an RFC 5322 rendering of a dispatch.Message.
type Composed struct {
	ID        string // bare uuid, safe for file names
	MessageID string // Message-ID header value
	Data      []byte
}

// Compose renders msg as a plain-text UTF-8 message with CRLF line endings.
func Compose(msg dispatch.Message, hostname string, now time.Time) Composed {
	id := uuid.NewString()
	mid := fmt.Sprintf("<%s@%s>", id, hostname)

	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headerValue(v))
		b.WriteString("\r\n")
	}
	header("From", msg.From)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", mid)
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\r\n") {
		b.WriteString("\r\n")
	}

	return Composed{ID: id, MessageID: mid, Data: b.Bytes()}
}

// headerValue folds CR and LF into spaces so field values cannot start new
// header lines.
func headerValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, v)
}
