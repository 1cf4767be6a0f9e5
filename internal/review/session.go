// Package review keeps uploaded organization lists and their generated
// batches in memory so a human can inspect and edit drafts before export.
package review

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/tabular"
)

var (
	ErrNotFound  = eris.New("review: session not found")
	ErrNoBatch   = eris.New("review: session has no generated emails")
	ErrRunning   = eris.New("review: generation already running")
	ErrBadIndex  = eris.New("review: email index out of range")
	ErrBadEdit   = eris.New("review: invalid edit")
	ErrNoRecords = eris.New("review: session has no valid organizations")
)

// Session is one upload and, once generated, its batch.
type Session struct {
	ID        string
	FileName  string
	Template  string
	CreatedAt time.Time

	mu        sync.Mutex
	input     *tabular.Input
	batch     *model.Batch
	running   bool
	updatedAt time.Time
}

// Input returns the parsed upload.
func (s *Session) Input() *tabular.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Batch returns a copy of the generated batch, or ErrNoBatch.
func (s *Session) Batch() (*model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch == nil {
		return nil, ErrNoBatch
	}
	b := *s.batch
	b.Records = append([]model.EmailRecord(nil), s.batch.Records...)
	return &b, nil
}

// Begin marks the session as generating. The returned func stores the
// finished batch (nil keeps the previous one) and clears the mark.
func (s *Session) Begin() (func(*model.Batch), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunning
	}
	if s.input == nil || len(s.input.Records) == 0 {
		return nil, ErrNoRecords
	}
	s.running = true
	return func(b *model.Batch) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if b != nil {
			s.batch = b
		}
		s.running = false
		s.updatedAt = time.Now()
	}, nil
}

// Edit is a human change to one email. Nil fields are left alone.
type Edit struct {
	Subject        *string `json:"subject,omitempty"`
	Body           *string `json:"body,omitempty"`
	RecipientEmail *string `json:"recipient_email,omitempty"`
	RecipientName  *string `json:"recipient_name,omitempty"`
}

// Apply edits record index and returns the updated record.
func (s *Session) Apply(index int, e Edit) (model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch == nil {
		return model.EmailRecord{}, ErrNoBatch
	}
	if index < 0 || index >= len(s.batch.Records) {
		return model.EmailRecord{}, eris.Wrapf(ErrBadIndex, "index %d of %d", index, len(s.batch.Records))
	}
	if e.Subject == nil && e.Body == nil && e.RecipientEmail == nil && e.RecipientName == nil {
		return model.EmailRecord{}, eris.Wrap(ErrBadEdit, "no fields to change")
	}

	rec := s.batch.Records[index]
	if e.RecipientEmail != nil {
		addr := strings.TrimSpace(*e.RecipientEmail)
		if addr != "" {
			parsed, err := mail.ParseAddress(addr)
			if err != nil {
				return model.EmailRecord{}, eris.Wrapf(ErrBadEdit, "recipient email %q", addr)
			}
			addr = parsed.Address
		}
		rec.Contact = editableContact(rec.Contact)
		rec.Contact.Email = addr
	}
	if e.RecipientName != nil {
		rec.Contact = editableContact(rec.Contact)
		rec.Contact.Name = strings.TrimSpace(*e.RecipientName)
	}
	if e.Subject != nil || e.Body != nil {
		d := model.Draft{}
		if rec.Draft != nil {
			d = *rec.Draft
		}
		if e.Subject != nil {
			d.Subject = strings.TrimSpace(*e.Subject)
		}
		if e.Body != nil {
			d.Body = strings.TrimSpace(*e.Body)
		}
		rec.Draft = &d
	}
	rec.Edited = true

	s.batch.Records[index] = rec
	s.updatedAt = time.Now()
	return rec, nil
}

// editableContact copies c so edits never alias the candidate list.
func editableContact(c *model.Contact) *model.Contact {
	if c == nil {
		return &model.Contact{Source: "review", SourceKind: model.SourceManual}
	}
	cp := *c
	return &cp
}

// Store holds sessions until they sit unused for the TTL.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a Store. A zero ttl disables purging.
func NewStore(ttl time.Duration) *Store {
	return &Store{sessions: make(map[string]*Session), ttl: ttl, now: time.Now}
}

// Create registers a new session for an uploaded list.
func (st *Store) Create(fileName, template string, in *tabular.Input) *Session {
	now := st.now()
	s := &Session{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Template:  template,
		CreatedAt: now,
		input:     in,
		updatedAt: now,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns a session by ID.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return s, nil
}

// Delete drops a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Purge removes sessions idle longer than the TTL. Sessions still
// generating are kept.
func (st *Store) Purge() int {
	if st.ttl <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := !s.running && s.updatedAt.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Janitor purges expired sessions every interval until ctx is done.
func (st *Store) Janitor(ctx context.Context, interval time.Duration) {
	if st.ttl <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := st.Purge(); n > 0 {
				zap.L().Info("review: purged expired sessions", zap.Int("purged", n), zap.Int("remaining", st.Len()))
			}
		}
	}
}
