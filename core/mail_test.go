package core

import (
	"io/fs"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/trezcool/forma/fs"
)

func TestEmailTemplates_Embedded(t *testing.T) {
	for _, name := range []string{"_base.gohtml", "_base.txt"} {
		_, err := fs.Stat(appfs.FS, path.Join(emailTemplatesDir, name))
		assert.NoError(t, err, name)
	}
}

func TestEmailMessage_Render(t *testing.T) {
	conf := NewTestConfig()

	tests := []struct {
		name     string
		msg      EmailMessage
		wantText []string
		wantHTML []string
	}{
		{
			name:     "plain body",
			msg:      EmailMessage{BodyStr: "hello"},
			wantText: []string{"hello"},
		},
		{
			name: "password reset",
			msg: EmailMessage{
				TemplateName: "password_reset",
				TemplateData: map[string]string{"Name": "Ana", "ResetURL": "http://localhost:3000/reset/abc"},
			},
			wantText: []string{"Hi Ana,", "http://localhost:3000/reset/abc", "The Forma team"},
			wantHTML: []string{"<!DOCTYPE html>", "Ana", "http://localhost:3000/reset/abc"},
		},
		{
			name: "submission received",
			msg: EmailMessage{
				TemplateName: "submission_received",
				TemplateData: map[string]string{
					"OwnerName":   "Owner",
					"FormTitle":   "Onboarding",
					"SubmittedAt": "2024-01-02",
					"ReviewURL":   "http://localhost:3000/review/1",
				},
			},
			wantText: []string{"Hi Owner,", `"Onboarding"`, "http://localhost:3000/review/1"},
			wantHTML: []string{"Onboarding", "http://localhost:3000/review/1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			require.NoError(t, msg.Render(conf))
			assert.True(t, msg.HasContent())
			for _, s := range tt.wantText {
				assert.Contains(t, msg.TextContent, s)
			}
			for _, s := range tt.wantHTML {
				assert.Contains(t, msg.HTMLContent, s)
			}
			if len(tt.wantHTML) == 0 {
				assert.Empty(t, msg.HTMLContent)
			}
		})
	}
}
