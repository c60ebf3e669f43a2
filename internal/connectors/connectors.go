package connectors

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/jhillyerd/enmime"

	"watson/internal"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMail, error)
}

// Archiver is implemented by sources that move a message out of the inbox
// once its raw copy is stored.
type Archiver interface {
	Archive(msg internal.FetchedMail) error
}

// Headers reads the envelope fields a source could not provide itself.
type Headers struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
}

func ReadHeaders(raw []byte) (Headers, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Headers{}, fmt.Errorf("read headers: %w", err)
	}
	h := Headers{
		MessageID: env.GetHeader("Message-ID"),
		Subject:   env.GetHeader("Subject"),
		From:      env.GetHeader("From"),
	}
	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		h.ReceivedAt = date.UTC().Format(time.RFC3339)
	}
	return h, nil
}
