package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/forma/core"
	logsvc "github.com/trezcool/forma/services/logger"
)

func TestMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, logsvc.NewNopLogger())

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
			Subject:      "New submission: Onboarding",
			TemplateName: "submission_received",
			TemplateData: map[string]string{
				"OwnerName":   "Jane",
				"FormTitle":   "Onboarding",
				"SubmittedAt": "2024-05-01 10:00 UTC",
				"ReviewURL":   "http://localhost:3000/forms/f1/submissions/s1",
			},
		},
		// no recipients: dropped
		&core.EmailMessage{Subject: "nobody", BodyStr: "hello"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Contains(t, msg.TextContent, "Hi Jane,")
	assert.Contains(t, msg.TextContent, `"Onboarding"`)
	assert.Contains(t, msg.TextContent, "http://localhost:3000/forms/f1/submissions/s1")
	assert.NotEmpty(t, msg.HTMLContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_Format(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, logsvc.NewNopLogger())

	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: "jane@example.com"}},
		Subject: "Hello",
		BodyStr: "plain body",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "answers.csv", "text/csv"))
	require.NoError(t, msg.Render(conf))

	body, err := svc.format(*msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Forma] Hello\r\n")
	assert.Contains(t, body, "To: <jane@example.com>\r\n")
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "plain body")
	assert.Contains(t, body, "attachment; filename=answers.csv")
	assert.NotContains(t, body, "CC:")
}
