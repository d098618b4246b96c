package gmailclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/jakechorley/volunteer-portal/pkg/core/ics"
)

const EMAIL_INTERVAL = 3 * time.Second

// SendEmail sends a raw RFC 822 message
// Throttles requests to respect Gmail API rate limits
func (c *Client) SendEmail(ctx context.Context, raw []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	// Check if we need to wait before sending
	if !c.lastSendTime.IsZero() {
		elapsed := time.Since(c.lastSendTime)
		if elapsed < c.interval {
			select {
			case <-time.After(c.interval - elapsed):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	gmailMessage := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	_, err := c.service.Users.Messages.Send("me", gmailMessage).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.lastSendTime = time.Now()

	return nil
}

func (c *Client) Name() string {
	return "gmail-invite"
}

// Deliver emails the event as a text/calendar attachment
func (c *Client) Deliver(ctx context.Context, event ics.Event) error {
	raw, err := BuildInvite(c.recipient, event)
	if err != nil {
		return err
	}
	return c.SendEmail(ctx, raw)
}

// BuildInvite renders a multipart message with a plain-text summary and the
// event as an .ics attachment
func BuildInvite(to string, event ics.Event) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	text, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	fmt.Fprintf(text, "%s\r\n%s\r\n%s\r\n",
		event.Title,
		event.Start.Local().Format("Monday 02/01/2006 15:04"),
		event.Location)

	attachment, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/calendar; charset=UTF-8; method=PUBLISH; name="` + ics.FileName(event.Title) + `"`},
		"Content-Disposition":       {`attachment; filename="` + ics.FileName(event.Title) + `"`},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar part: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(ics.Render(event))
	for len(encoded) > 76 {
		fmt.Fprintf(attachment, "%s\r\n", encoded[:76])
		encoded = encoded[76:]
	}
	fmt.Fprintf(attachment, "%s\r\n", encoded)

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Volunteering: "+event.Title))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
