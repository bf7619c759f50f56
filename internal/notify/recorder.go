package notify

import (
	"context"
	"sync"
)

// RecordedEmail is one captured email delivery.
type RecordedEmail struct {
	To      []string
	Subject string
	Body    []string
}

// RecordedAnnouncement is one captured IRC delivery.
type RecordedAnnouncement struct {
	Target IRCTarget
	Lines  []string
	Opts   IRCOptions
}

// RecordedPost is one captured webhook delivery.
type RecordedPost struct {
	URL  string
	Body []byte
}

// Recorder is an in-memory transport for all three channels. Tests and
// the conformance harness install one recorder as mailer, messenger,
// and poster at once: fired notifications are captured instead of sent
// and report success, keeping dispatch decisions observable without a
// network.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	err    error
	emails []RecordedEmail
	irc    []RecordedAnnouncement
	posts  []RecordedPost
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every later delivery fail with err without recording
// it. Passing nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SendMail implements Mailer.
func (r *Recorder) SendMail(_ context.Context, to []string, subject string, body []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.emails = append(r.emails, RecordedEmail{
		To:      append([]string(nil), to...),
		Subject: subject,
		Body:    append([]string(nil), body...),
	})
	return nil
}

// Announce implements Messenger.
func (r *Recorder) Announce(_ context.Context, target IRCTarget, lines []string, opts IRCOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.irc = append(r.irc, RecordedAnnouncement{
		Target: target,
		Lines:  append([]string(nil), lines...),
		Opts:   opts,
	})
	return nil
}

// Post implements Poster.
func (r *Recorder) Post(_ context.Context, url string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.posts = append(r.posts, RecordedPost{
		URL:  url,
		Body: append([]byte(nil), body...),
	})
	return nil
}

// Emails returns the captured email deliveries in order.
func (r *Recorder) Emails() []RecordedEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEmail(nil), r.emails...)
}

// Announcements returns the captured IRC deliveries in order.
func (r *Recorder) Announcements() []RecordedAnnouncement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedAnnouncement(nil), r.irc...)
}

// Posts returns the captured webhook deliveries in order.
func (r *Recorder) Posts() []RecordedPost {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedPost(nil), r.posts...)
}
