package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/tabular"
)

func ptr(s string) *string { return &s }

func testInput() *tabular.Input {
	return &tabular.Input{Records: []model.OrganizationRecord{{Name: "Lakeside School"}, {Name: "Hillcrest"}}}
}

func generated(t *testing.T, s *Session) {
	t.Helper()
	done, err := s.Begin()
	require.NoError(t, err)
	contact := model.Contact{Name: "Jane Smith", Email: "jsmith@lakeside.edu", Confidence: 90}
	done(&model.Batch{ID: "b1", Records: []model.EmailRecord{
		{
			Organization: model.OrganizationRecord{Name: "Lakeside School"},
			Contact:      &contact,
			Candidates:   []model.Contact{contact},
			Draft:        &model.Draft{Subject: "Hello", Body: "Dear Jane,"},
		},
		{Organization: model.OrganizationRecord{Name: "Hillcrest"}, Status: model.StatusResearchFailed},
	}})
}

func TestStore_CreateGetDelete(t *testing.T) {
	st := NewStore(time.Hour)
	s := st.Create("schools.csv", "Hi {name}", testInput())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, "schools.csv", got.FileName)
	assert.Len(t, got.Input().Records, 2)

	st.Delete(s.ID)
	_, err = st.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_BatchBeforeGenerate(t *testing.T) {
	s := NewStore(0).Create("a.csv", "", testInput())
	_, err := s.Batch()
	assert.ErrorIs(t, err, ErrNoBatch)
	_, err = s.Apply(0, Edit{Subject: ptr("x")})
	assert.ErrorIs(t, err, ErrNoBatch)
}

func TestSession_BeginIsExclusive(t *testing.T) {
	s := NewStore(0).Create("a.csv", "", testInput())

	done, err := s.Begin()
	require.NoError(t, err)
	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrRunning)

	done(nil)
	_, err = s.Batch()
	assert.ErrorIs(t, err, ErrNoBatch)

	_, err = s.Begin()
	assert.NoError(t, err)
}

func TestSession_BeginWithoutRecords(t *testing.T) {
	s := NewStore(0).Create("a.csv", "", &tabular.Input{})
	_, err := s.Begin()
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestSession_ApplyEdits(t *testing.T) {
	s := NewStore(0).Create("a.csv", "", testInput())
	generated(t, s)

	rec, err := s.Apply(0, Edit{Subject: ptr("  New subject "), RecipientEmail: ptr("Jane <jane@lakeside.edu>")})
	require.NoError(t, err)
	assert.True(t, rec.Edited)
	assert.Equal(t, "New subject", rec.Draft.Subject)
	assert.Equal(t, "Dear Jane,", rec.Draft.Body)
	assert.Equal(t, "jane@lakeside.edu", rec.Contact.Email)
	assert.Equal(t, "jsmith@lakeside.edu", rec.Candidates[0].Email)

	b, err := s.Batch()
	require.NoError(t, err)
	assert.Equal(t, "New subject", b.Records[0].Draft.Subject)

	// A record with no contact or draft gets both on edit.
	rec, err = s.Apply(1, Edit{RecipientName: ptr("Pat Lee"), Body: ptr("Dear Pat,")})
	require.NoError(t, err)
	assert.Equal(t, "Pat Lee", rec.Contact.Name)
	assert.Equal(t, model.SourceManual, rec.Contact.SourceKind)
	assert.Equal(t, "Dear Pat,", rec.Draft.Body)
}

func TestSession_ApplyRejectsBadInput(t *testing.T) {
	s := NewStore(0).Create("a.csv", "", testInput())
	generated(t, s)

	_, err := s.Apply(5, Edit{Subject: ptr("x")})
	assert.ErrorIs(t, err, ErrBadIndex)
	_, err = s.Apply(-1, Edit{Subject: ptr("x")})
	assert.ErrorIs(t, err, ErrBadIndex)
	_, err = s.Apply(0, Edit{})
	assert.ErrorIs(t, err, ErrBadEdit)
	_, err = s.Apply(0, Edit{RecipientEmail: ptr("not an email")})
	assert.ErrorIs(t, err, ErrBadEdit)
}

func TestSession_BatchIsACopy(t *testing.T) {
	s := NewStore(0).Create("a.csv", "", testInput())
	generated(t, s)

	b, err := s.Batch()
	require.NoError(t, err)
	b.Records[0].Edited = true

	again, err := s.Batch()
	require.NoError(t, err)
	assert.False(t, again.Records[0].Edited)
}

func TestStore_Purge(t *testing.T) {
	st := NewStore(time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	old := st.Create("old.csv", "", testInput())
	busy := st.Create("busy.csv", "", testInput())
	_, err := busy.Begin()
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	fresh := st.Create("fresh.csv", "", testInput())

	assert.Equal(t, 1, st.Purge())
	_, err = st.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(busy.ID)
	assert.NoError(t, err)
	_, err = st.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestStore_PurgeDisabled(t *testing.T) {
	st := NewStore(0)
	st.Create("a.csv", "", testInput())
	assert.Zero(t, st.Purge())
	assert.Equal(t, 1, st.Len())
}

func TestStore_JanitorStopsOnCancel(t *testing.T) {
	st := NewStore(time.Millisecond)
	st.Create("a.csv", "", testInput())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st.Janitor(ctx, time.Millisecond)
	}()

	require.Eventually(t, func() bool { return st.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
}
