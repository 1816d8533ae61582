package internal

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
)

// BuildTestIMAPServer starts an in-memory IMAP server listening on a
// random local port. Credentials are username/password; the INBOX
// starts empty.
func BuildTestIMAPServer(t *testing.T) (*server.Server, string, *memory.Mailbox) {
	be := memory.New()
	user, err := be.Login(nil, "username", "password")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mb, err := user.GetMailbox("INBOX")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = nil

	s := server.New(be)
	t.Cleanup(func() { _ = s.Close() })

	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	go func() { err = s.Serve(l) }()

	return s, l.Addr().String(), mailbox
}

type TestMessage struct {
	From    string
	To      string
	Subject string
	Date    time.Time
	Text    string
	HTML    string
}

// AppendMessage adds a message to the in-memory mailbox. Both Text and
// HTML set yields a multipart/alternative body.
func AppendMessage(mailbox *memory.Mailbox, m TestMessage) {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case m.Text != "" && m.HTML != "":
		b.WriteString("Content-Type: multipart/alternative; boundary=\"testboundary\"\r\n\r\n")
		b.WriteString("--testboundary\r\n")
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(m.Text)
		b.WriteString("\r\n--testboundary\r\n")
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(m.HTML)
		b.WriteString("\r\n--testboundary--\r\n")
	case m.HTML != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(m.HTML)
		b.WriteString("\r\n")
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(m.Text)
		b.WriteString("\r\n")
	}

	raw := []byte(b.String())
	mailbox.Messages = append(mailbox.Messages, &memory.Message{
		Uid:   uint32(len(mailbox.Messages) + 1),
		Date:  date,
		Size:  uint32(len(raw)),
		Flags: []string{},
		Body:  raw,
	})
}
