package form

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Matches reports whether the owner of c is visible given answers.
// A nil Conditional always matches; an unanswered dependency never does.
func (c *Conditional) Matches(answers Answers) bool {
	if c == nil || c.DependsOn == "" {
		return true
	}
	val, ok := answers[c.DependsOn]
	if !ok || val == nil {
		return false
	}
	for _, got := range answerStrings(val) {
		for _, want := range c.ShowWhen {
			if got == want {
				return true
			}
		}
	}
	return false
}

// VisibleFields returns the fields of s whose conditional matches answers.
func (s Section) VisibleFields(answers Answers) []Field {
	fields := make([]Field, 0, len(s.Fields))
	for _, fld := range sortedFields(s.Fields) {
		if fld.Conditional.Matches(answers) {
			fields = append(fields, fld)
		}
	}
	return fields
}

// EffectiveAnswers returns a copy of answers without the values of hidden fields.
// Fields are evaluated in template order so that a hidden field never reveals its dependents.
func (t Template) EffectiveAnswers(answers Answers) Answers {
	effective := answers.Clone()
	for _, sec := range sortedSections(t.Sections) {
		secVisible := sec.Conditional.Matches(effective)
		for _, fld := range sortedFields(sec.Fields) {
			if !secVisible || !fld.Conditional.Matches(effective) {
				delete(effective, fld.ID)
			}
		}
	}
	return effective
}

// VisibleSections returns the sections shown for answers, in display order.
func (t Template) VisibleSections(answers Answers) []Section {
	effective := t.EffectiveAnswers(answers)
	sections := make([]Section, 0, len(t.Sections))
	for _, sec := range sortedSections(t.Sections) {
		if sec.Conditional.Matches(effective) {
			sections = append(sections, sec)
		}
	}
	return sections
}

// Project returns the visible sections holding only their visible fields.
func (t Template) Project(answers Answers) []Section {
	effective := t.EffectiveAnswers(answers)
	sections := t.VisibleSections(answers)
	for i := range sections {
		sections[i].Fields = sections[i].VisibleFields(effective)
	}
	return sections
}

// VisibleAnswers keeps the answers of visible fields only.
func (t Template) VisibleAnswers(answers Answers) Answers {
	projected := make(Answers)
	for _, sec := range t.Project(answers) {
		for _, fld := range sec.Fields {
			if val, ok := answers[fld.ID]; ok {
				projected[fld.ID] = val
			}
		}
	}
	return projected
}

// SectionIndex returns the position of the section id among the visible sections, or -1.
func (t Template) SectionIndex(id string, answers Answers) int {
	for i, sec := range t.VisibleSections(answers) {
		if sec.ID == id {
			return i
		}
	}
	return -1
}

// Progress is the rounded percentage of answered visible fields, clamped to [0, 100].
func (t Template) Progress(answers Answers) int {
	var total, answered int
	for _, sec := range t.Project(answers) {
		for _, fld := range sec.Fields {
			total++
			if val, ok := answers[fld.ID]; ok && !IsEmptyAnswer(val) {
				answered++
			}
		}
	}
	if total == 0 {
		return 0
	}
	pct := int(math.Round(float64(answered) * 100 / float64(total)))
	if pct < 0 {
		return 0
	} else if pct > 100 {
		return 100
	}
	return pct
}

// IsEmptyAnswer reports whether val counts as "not answered".
func IsEmptyAnswer(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return !v
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

// answerStrings flattens an answer into the strings compared against Conditional.ShowWhen.
func answerStrings(val interface{}) []string {
	switch v := val.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		vals := make([]string, 0, len(v))
		for _, item := range v {
			vals = append(vals, answerStrings(item)...)
		}
		return vals
	case bool:
		return []string{strconv.FormatBool(v)}
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(v)}
	case json.Number:
		return []string{v.String()}
	}
	return nil
}

func sortedSections(sections []Section) []Section {
	sorted := make([]Section, len(sections))
	copy(sorted, sections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}

func sortedFields(fields []Field) []Field {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}
