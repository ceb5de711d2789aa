package session

import (
	"time"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/user"
)

// Session statuses
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// Submission statuses
const (
	SubmissionSubmitted = "submitted"
	SubmissionApproved  = "approved"
	SubmissionRejected  = "rejected"
)

// Event types
const (
	EventFormStarted      = "form_started"
	EventSectionCompleted = "section_completed"
	EventFormSubmitted    = "form_submitted"
	EventFormEdited       = "form_edited"
)

var (
	SubmissionStatuses = []string{SubmissionSubmitted, SubmissionApproved, SubmissionRejected}
	EventTypes         = []string{EventFormStarted, EventSectionCompleted, EventFormSubmitted, EventFormEdited}
)

type (
	// Session is one end user's progress through a form. Its ID is the resume token.
	Session struct {
		ID             string       `json:"id"`
		FormID         string       `json:"form_id"`
		UserID         string       `json:"user_id,omitempty"`
		OrganizationID string       `json:"organization_id,omitempty"`
		Status         string       `json:"status"`
		Progress       int          `json:"progress"`
		CurrentSection string       `json:"current_section"`
		Data           form.Answers `json:"data"`
		CreatedAt      time.Time    `json:"created_at"`
		UpdatedAt      time.Time    `json:"updated_at"`
		SubmittedAt    *time.Time   `json:"submitted_at,omitempty"`
	}

	Submission struct {
		ID          string       `json:"id"`
		FormID      string       `json:"form_id"`
		SessionID   string       `json:"session_id"`
		UserID      string       `json:"user_id,omitempty"`
		Data        form.Answers `json:"data"`
		Status      string       `json:"status"`
		ReviewedBy  string       `json:"reviewed_by,omitempty"`
		ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
		CreatedAt   time.Time    `json:"created_at"`
		UpdatedAt   time.Time    `json:"updated_at"`
		SubmittedAt time.Time    `json:"submitted_at"`
	}

	Event struct {
		ID        string                 `json:"id"`
		FormID    string                 `json:"form_id"`
		SessionID string                 `json:"session_id"`
		Type      string                 `json:"type"`
		Data      map[string]interface{} `json:"data,omitempty"`
		CreatedAt time.Time              `json:"created_at"`
	}

	// View is a session along with the state of the form for its current answers.
	View struct {
		Session       Session        `json:"session"`
		Sections      []form.Section `json:"sections"`
		CurrentIndex  int            `json:"current_index"`
		TotalSections int            `json:"total_sections"`
		Progress      int            `json:"progress"`
		IsLastSection bool           `json:"is_last_section"`
	}

	// SectionProgress holds the answers entered on a section.
	SectionProgress struct {
		SectionID string       `json:"section_id" validate:"required"`
		Data      form.Answers `json:"data"`
	}

	ReviewSubmission struct {
		Status string `json:"status" validate:"required,oneof=approved rejected"`
	}

	SubmissionFilter struct {
		FormID        string    `query:"-"`
		Status        string    `query:"status"`
		UserID        string    `query:"user_id"`
		SubmittedFrom time.Time `query:"submitted_from"`
		SubmittedTo   time.Time `query:"submitted_to"`
	}

	// Scope restricts counts to the forms of an organization, or to the forms created by a user.
	Scope struct {
		OrganizationID string
		CreatedBy      string
	}

	Stats struct {
		Forms             int            `json:"forms"`
		DraftSessions     int            `json:"draft_sessions"`
		SubmittedSessions int            `json:"submitted_sessions"`
		Submissions       map[string]int `json:"submissions"`
		Events            map[string]int `json:"events"`
	}
)

// ScopeFor returns the scope of the forms usr manages.
func ScopeFor(usr user.User) Scope {
	if usr.OrganizationID != "" {
		return Scope{OrganizationID: usr.OrganizationID}
	}
	return Scope{CreatedBy: usr.ID}
}

func (s Session) IsDraft() bool { return s.Status == StatusDraft }

func (sf *SubmissionFilter) Clean() {
	sf.Status = core.CleanString(sf.Status, true /* lower */)
	sf.UserID = core.CleanString(sf.UserID)
}

// newView snaps a stale current section to the last visible one.
func newView(t form.Template, s Session) View {
	sections := t.Project(s.Data)
	idx := -1
	for i, sec := range sections {
		if sec.ID == s.CurrentSection {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(sections) - 1
	}
	if idx < 0 {
		idx = 0
	} else {
		s.CurrentSection = sections[idx].ID
	}
	return View{
		Session:       s,
		Sections:      sections,
		CurrentIndex:  idx,
		TotalSections: len(sections),
		Progress:      t.Progress(s.Data),
		IsLastSection: len(sections) == 0 || idx == len(sections)-1,
	}
}
