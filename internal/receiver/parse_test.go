package receiver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMultipart(t *testing.T) {
	raw := "From: Bob <bob@example.com>\r\n" +
		"Subject: =?utf-8?q?R=C3=A9sum=C3=A9?=\r\n" +
		"Message-ID: <m1@example.com>\r\n" +
		"In-Reply-To: <p2@example.com>\r\n" +
		"References: <p0@example.com> <p1@example.com> <p2@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<p>html body</p>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		"plain body\r\n" +
		"--XYZ--\r\n"

	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "m1@example.com", msg.MessageID)
	require.Equal(t, "Résumé", msg.Subject)
	require.Equal(t, "bob@example.com", msg.From)
	require.Contains(t, msg.Body(), "plain body")
	require.Contains(t, msg.HTML, "html body")
	require.Equal(t, []string{"p2@example.com", "p1@example.com", "p0@example.com"}, msg.ThreadIDs())
}

func TestTitle(t *testing.T) {
	tests := map[string]string{
		"Re: Hello":            "Hello",
		"RE: Fwd: Hello":       "Hello",
		"Re[2]: Hello":         "Hello",
		"AW: Hello":            "Hello",
		"  ":                   "(no subject)",
		"Regarding the report": "Regarding the report",
	}
	for subject, want := range tests {
		m := &Message{Subject: subject}
		require.Equal(t, want, m.Title(), subject)
	}
}
