package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) session.Repository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(_ context.Context, s session.Session, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.db.sessions[s.ID] = clone(s)
	return s, nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return clone(s), nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) GetDraft(_ context.Context, formID, userID string, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var (
		latest session.Session
		found  bool
	)
	for _, s := range repo.db.sessions {
		if s.FormID != formID || s.UserID != userID || !s.IsDraft() {
			continue
		}
		if !found || s.UpdatedAt.After(latest.UpdatedAt) {
			latest, found = s, true
		}
	}
	if !found {
		return session.Session{}, session.ErrNotFound
	}
	return clone(latest), nil
}

// draft checks that session id is stored and still a draft. db.mu must be held.
func (repo *sessionRepository) draft(id string) error {
	stored, ok := repo.db.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	if !stored.IsDraft() {
		return session.ErrSubmitted
	}
	return nil
}

func (repo *sessionRepository) UpdateDraft(_ context.Context, s session.Session, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.draft(s.ID); err != nil {
		return session.Session{}, err
	}
	repo.db.sessions[s.ID] = clone(s)
	return s, nil
}

func (repo *sessionRepository) DeleteDraft(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.draft(id); err != nil {
		return err
	}
	delete(repo.db.sessions, id)

	for subID, sub := range repo.db.submissions {
		if sub.SessionID == id {
			delete(repo.db.submissions, subID)
		}
	}
	events := repo.db.events[:0:0]
	for _, evt := range repo.db.events {
		if evt.SessionID != id {
			events = append(events, evt)
		}
	}
	repo.db.events = events
	return nil
}

func (repo *sessionRepository) CountSessions(_ context.Context, scope session.Scope, _ ...core.DBExecutor) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]int)
	for _, s := range repo.db.sessions {
		if repo.db.inScope(s.FormID, scope) {
			counts[s.Status]++
		}
	}
	return counts, nil
}

type submissionRepository struct {
	db *DB
}

var _ session.SubmissionRepository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) session.SubmissionRepository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub session.Submission, _ ...core.DBExecutor) (session.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.submissions {
		if existing.SessionID == sub.SessionID {
			return session.Submission{}, session.ErrSubmissionExists
		}
	}
	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = clone(sub)
	return sub, nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id string, _ ...core.DBExecutor) (session.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return clone(sub), nil
	}
	return session.Submission{}, session.ErrSubmissionNotFound
}

func (repo *submissionRepository) GetSessionSubmission(_ context.Context, sessionID string, _ ...core.DBExecutor) (session.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.SessionID == sessionID {
			return clone(sub), nil
		}
	}
	return session.Submission{}, session.ErrSubmissionNotFound
}

func compareSubmissions(a, b session.Submission, field string) int {
	switch field {
	case "status":
		return compareStrings(a.Status, b.Status)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "submitted_at":
		return compareTimes(a.SubmittedAt, b.SubmittedAt)
	}
	return 0
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, filter *session.SubmissionFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]session.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]session.Submission, 0)
	for _, sub := range repo.db.submissions {
		if filter != nil {
			if filter.FormID != "" && sub.FormID != filter.FormID {
				continue
			}
			if filter.Status != "" && sub.Status != filter.Status {
				continue
			}
			if filter.UserID != "" && sub.UserID != filter.UserID {
				continue
			}
			if !inRange(sub.SubmittedAt, filter.SubmittedFrom, filter.SubmittedTo) {
				continue
			}
		}
		subs = append(subs, clone(sub))
	}
	sortBy(subs, ordering, compareSubmissions)
	return subs, nil
}

func (repo *submissionRepository) UpdateSubmission(_ context.Context, sub session.Submission, _ ...core.DBExecutor) (session.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.submissions[sub.ID]; !ok {
		return session.Submission{}, session.ErrSubmissionNotFound
	}
	repo.db.submissions[sub.ID] = clone(sub)
	return sub, nil
}

func (repo *submissionRepository) CountSubmissions(_ context.Context, scope session.Scope, _ ...core.DBExecutor) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]int)
	for _, sub := range repo.db.submissions {
		if repo.db.inScope(sub.FormID, scope) {
			counts[sub.Status]++
		}
	}
	return counts, nil
}

type eventRepository struct {
	db *DB
}

var _ session.EventRepository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) session.EventRepository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) CreateEvent(_ context.Context, evt session.Event, _ ...core.DBExecutor) (session.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	evt.ID = uuid.New().String()
	repo.db.events = append(repo.db.events, clone(evt))
	return evt, nil
}

func (repo *eventRepository) QueryEvents(_ context.Context, sessionID string, _ ...core.DBExecutor) ([]session.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	events := make([]session.Event, 0)
	for _, evt := range repo.db.events {
		if evt.SessionID == sessionID {
			events = append(events, clone(evt))
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (repo *eventRepository) CountEvents(_ context.Context, scope session.Scope, _ ...core.DBExecutor) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]int)
	for _, evt := range repo.db.events {
		if repo.db.inScope(evt.FormID, scope) {
			counts[evt.Type]++
		}
	}
	return counts, nil
}
