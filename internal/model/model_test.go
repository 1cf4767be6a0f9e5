package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrganizationRecord_MissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		org  OrganizationRecord
		want []string
	}{
		{
			name: "complete",
			org:  OrganizationRecord{Name: "Lakeside Academy", Fit: "High", Tuition: "$50,000", PainSignal: "teacher burnout"},
			want: nil,
		},
		{
			name: "blank name and whitespace tuition",
			org:  OrganizationRecord{Fit: "High", Tuition: "   ", PainSignal: "grading load"},
			want: []string{"name", "tuition"},
		},
		{
			name: "empty",
			org:  OrganizationRecord{},
			want: []string{"name", "fit", "tuition", "pain_signal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.org.MissingFields())
		})
	}
}

func TestOrganizationRecord_Summary(t *testing.T) {
	t.Parallel()

	org := OrganizationRecord{
		Name:       "Lakeside Academy",
		Fit:        "High",
		Tuition:    "$50,000",
		PainSignal: "teacher burnout",
		Extra:      map[string]string{"State": "WA", "Enrollment": "600"},
	}

	want := "- Organization: Lakeside Academy\n" +
		"- Fit: High\n" +
		"- Tuition: $50,000\n" +
		"- Pain signal: teacher burnout\n" +
		"- Enrollment: 600\n" +
		"- State: WA"
	assert.Equal(t, want, org.Summary())
}

func TestContact_DisplayName(t *testing.T) {
	t.Parallel()

	var nilContact *Contact
	assert.Equal(t, "", nilContact.DisplayName())
	assert.Equal(t, "Jane Doe", (&Contact{Name: "Jane Doe", Title: "Dean"}).DisplayName())
	assert.Equal(t, "Dean", (&Contact{Title: "Dean"}).DisplayName())
	assert.Equal(t, "Administrator", (&Contact{Email: "x@y.edu"}).DisplayName())
}

func TestFlagSet_ListIsCanonicalOrder(t *testing.T) {
	t.Parallel()

	s := FlagSet{}
	s.Add(FlagGenerationFailed)
	s.Add(FlagNeedsReview)
	s.Add(FlagUncertainContact)
	s.Add(FlagNeedsReview)

	assert.Equal(t, []Flag{FlagNeedsReview, FlagUncertainContact, FlagGenerationFailed}, s.List())
}

func TestValidationResult_Has(t *testing.T) {
	t.Parallel()

	var nilResult *ValidationResult
	assert.False(t, nilResult.Has(ViolationTone))

	v := &ValidationResult{Violations: []Violation{{Kind: ViolationLength}}}
	assert.True(t, v.Has(ViolationLength))
	assert.False(t, v.Has(ViolationTone))
}

func TestBatch_Stats(t *testing.T) {
	t.Parallel()

	b := &Batch{Records: []EmailRecord{
		{Status: StatusAccepted, FinalConfidence: 90},
		{Status: StatusExhausted, FinalConfidence: 50, Flags: []Flag{FlagNeedsReview}},
		{Status: StatusResearchFailed, Flags: []Flag{FlagResearchFailed}},
	}}

	st := b.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Flagged)
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, 46, st.AvgConfidence)
}

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, OutputTokens: 5, Cost: 0.5}
	u.Add(TokenUsage{InputTokens: 1, OutputTokens: 2, SearchQueries: 1, Cost: 0.25})

	assert.Equal(t, 11, u.InputTokens)
	assert.Equal(t, 7, u.OutputTokens)
	assert.Equal(t, 1, u.SearchQueries)
	assert.InDelta(t, 0.75, u.Cost, 0.0001)
}
