// Package mailtest records outgoing mail for tests.
package mailtest

import (
	"context"
	"net/url"
	"regexp"
	"sync"

	"github.com/charlesng35/sessiond/pkg/mail"
)

var linkPattern = regexp.MustCompile(`https?://\S+`)

// Recorder keeps sent messages in memory. Err, when set, is returned from Send
// after recording.
type Recorder struct {
	mu       sync.Mutex
	messages []mail.Message
	Err      error
}

func (r *Recorder) Send(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mail.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// LastCode returns the code carried by the link of the latest message sent to
// address, or "" when there is none.
func (r *Recorder) LastCode(address string) string {
	messages := r.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		for _, to := range messages[i].To {
			if to == address {
				return Code(messages[i])
			}
		}
	}
	return ""
}

// Code extracts the "code" query parameter of the first link in msg.
func Code(msg mail.Message) string {
	raw := linkPattern.FindString(msg.Body)
	if raw == "" {
		return ""
	}
	link, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return link.Query().Get("code")
}
