package form

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses bounds the decode/strip loop of nested entity encodings.
const maxSanitizePasses = 5

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// sanitizeText strips any markup from admin-authored text. Entities are decoded back since
// the API serves JSON and clients escape on render; decoding repeats until nothing is stripped,
// so encoded markup cannot come back as markup.
func sanitizeText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	policy := textSanitizer()
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
		if next == s {
			return s
		}
		s = next
	}
	return strings.TrimSpace(policy.Sanitize(s))
}

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

func (nt *NewTemplate) sanitize() {
	nt.Title = sanitizeText(nt.Title)
	nt.Description = sanitizeText(nt.Description)
	for i := range nt.Sections {
		sec := &nt.Sections[i]
		sec.ID = strings.TrimSpace(sec.ID)
		sec.Title = sanitizeText(sec.Title)
		sec.Description = sanitizeText(sec.Description)
		for j := range sec.Fields {
			fld := &sec.Fields[j]
			fld.ID = strings.TrimSpace(fld.ID)
			fld.Type = strings.ToLower(strings.TrimSpace(fld.Type))
			fld.Label = sanitizeText(fld.Label)
			fld.Placeholder = sanitizeText(fld.Placeholder)
			for k := range fld.Options {
				fld.Options[k].Label = sanitizeText(fld.Options[k].Label)
			}
		}
	}
}
