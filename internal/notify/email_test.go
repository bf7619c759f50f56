package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	date := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	msg := string(buildMessage(
		"ci@example.com",
		[]string{"ops@example.com", "dev@example.com"},
		"[tessera] privcount#12: failed",
		[]string{"privcount run #12 finished: failed", "", "  linux/stable  passed"},
		date,
	))

	lines := strings.Split(msg, "\r\n")
	require.GreaterOrEqual(t, len(lines), 10)
	assert.Equal(t, "From: ci@example.com", lines[0])
	assert.Equal(t, "To: ops@example.com, dev@example.com", lines[1])
	assert.Equal(t, "Subject: [tessera] privcount#12: failed", lines[2])
	assert.Equal(t, "Date: Sat, 14 Mar 2026 09:30:00 +0000", lines[3])
	assert.Equal(t, "MIME-Version: 1.0", lines[4])
	assert.Equal(t, "Content-Type: text/plain; charset=utf-8", lines[5])
	assert.Equal(t, "", lines[6], "blank line separates headers from body")
	assert.Equal(t, "privcount run #12 finished: failed", lines[7])
}

func TestBuildMessageCRLFOnly(t *testing.T) {
	msg := string(buildMessage("a@b", []string{"c@d"}, "s", []string{"one", "two"}, time.Now()))
	assert.NotContains(t, strings.ReplaceAll(msg, "\r\n", ""), "\n", "bare LF is not valid in SMTP payloads")
}

func TestSendMailNoRecipients(t *testing.T) {
	m := NewSMTPMailer("relay.example.com:25", "ci@example.com")
	// Must not dial at all; the address does not resolve.
	err := m.SendMail(context.Background(), nil, "subject", []string{"body"})
	assert.NoError(t, err)
}
