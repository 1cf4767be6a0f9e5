package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/writer"
)

var lakeside = model.OrganizationRecord{Name: "Lakeside School", Fit: "High", Tuition: "$30,000"}

func testConfig() ControllerConfig {
	return ControllerConfig{AcceptThreshold: 70, ValidatorWeight: 0.6, MaxAttempts: 3, IssueScoreFloor: 60}
}

func TestController_AcceptsFirstAttempt(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	d.On("Draft", mock.Anything, mock.Anything).Return(draftN(1), model.TokenUsage{InputTokens: 10}, nil).Once()
	c.On("Critique", mock.Anything, mock.Anything, lakeside).Return(critique(90, 90, 90), model.TokenUsage{InputTokens: 5}).Once()
	v.On("Validate", mock.Anything, lakeside).Return(model.ValidationResult{Score: 100}).Once()

	out := NewController(d, c, v, testConfig()).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateAccepted, out.State)
	require.Len(t, out.History, 1)
	require.NotNil(t, out.Final)
	assert.InDelta(t, 96.0, out.Final.Decision.FusedScore, 0.001)
	assert.Equal(t, model.DecisionAccept, out.Final.Decision.Decision)
	assert.Equal(t, 15, out.Usage.InputTokens)
	d.AssertExpectations(t)
	c.AssertExpectations(t)
	v.AssertExpectations(t)
}

func TestController_ExhaustedSurfacesLastDraft(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	for n := 1; n <= 3; n++ {
		d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool { return in.Attempt == n })).
			Return(draftN(n), model.TokenUsage{}, nil).Once()
	}
	c.On("Critique", mock.Anything, mock.Anything, mock.Anything).Return(critique(50, 50, 50), model.TokenUsage{})
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 1 }), mock.Anything).
		Return(model.ValidationResult{Score: 40}).Once()
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 2 }), mock.Anything).
		Return(model.ValidationResult{Score: 60}).Once()
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 3 }), mock.Anything).
		Return(model.ValidationResult{Score: 50}).Once()

	out := NewController(d, c, v, testConfig()).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateExhausted, out.State)
	require.Len(t, out.History, 3)
	assert.Equal(t, model.DecisionRetry, out.History[0].Decision.Decision)
	assert.Equal(t, model.DecisionRetry, out.History[1].Decision.Decision)
	assert.Equal(t, model.DecisionExhausted, out.History[2].Decision.Decision)
	require.NotNil(t, out.Final)
	assert.Equal(t, 3, out.Final.Number)
	assert.Equal(t, 3, out.Final.Draft.Attempt)
	assert.InDelta(t, 50.0, out.Final.Decision.FusedScore, 0.001)
	d.AssertExpectations(t)
}

func TestController_FailedLastAttemptFallsBackToEarlierDraft(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	for n := 1; n <= 2; n++ {
		d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool { return in.Attempt == n })).
			Return(draftN(n), model.TokenUsage{}, nil).Once()
	}
	d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool { return in.Attempt == 3 })).
		Return(nil, model.TokenUsage{}, errors.New("anthropic: status 529")).Once()
	c.On("Critique", mock.Anything, mock.Anything, mock.Anything).Return(critique(50, 50, 50), model.TokenUsage{})
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 1 }), mock.Anything).
		Return(model.ValidationResult{Score: 65}).Once()
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 2 }), mock.Anything).
		Return(model.ValidationResult{Score: 45}).Once()

	out := NewController(d, c, v, testConfig()).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateExhausted, out.State)
	require.Len(t, out.History, 3)
	assert.True(t, out.History[2].Failed())
	require.NotNil(t, out.Final)
	assert.Equal(t, 2, out.Final.Number)
	assert.InDelta(t, 47.0, out.Final.Decision.FusedScore, 0.001)
}

func TestController_FeedbackReachesNextAttempt(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool { return in.Attempt == 1 })).
		Return(draftN(1), model.TokenUsage{}, nil).Once()
	d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool {
		return in.Attempt == 2 &&
			strings.HasPrefix(in.Feedback, "ISSUES TO FIX:") &&
			strings.Contains(in.Feedback, "Email too short") &&
			strings.Contains(in.Feedback, "Mention the school by name") &&
			strings.Contains(in.Feedback, "Improve tone")
	})).Return(draftN(2), model.TokenUsage{}, nil).Once()

	weak := critique(40, 80, 50)
	weak.Feedback = "Mention the school by name"
	c.On("Critique", mock.Anything, mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 1 }), mock.Anything).
		Return(weak, model.TokenUsage{}).Once()
	c.On("Critique", mock.Anything, mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 2 }), mock.Anything).
		Return(critique(90, 90, 90), model.TokenUsage{}).Once()

	short := model.ValidationResult{Score: 60, Violations: []model.Violation{
		{Kind: model.ViolationLength, Rule: "length.words", Message: "Email too short (40 words, expected 100-300)"},
	}}
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 1 }), mock.Anything).Return(short).Once()
	v.On("Validate", mock.MatchedBy(func(d *model.Draft) bool { return d.Attempt == 2 }), mock.Anything).
		Return(model.ValidationResult{Score: 100}).Once()

	out := NewController(d, c, v, testConfig()).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateAccepted, out.State)
	assert.Len(t, out.History, 2)
	d.AssertExpectations(t)
}

func TestController_WeightExtremes(t *testing.T) {
	tests := []struct {
		name   string
		weight float64
		want   float64
	}{
		{"validator only", 1, 30},
		{"critic only", 0, 90},
		{"default", 0.6, 54},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ValidatorWeight = tt.weight
			ctrl := NewController(nil, nil, nil, cfg)
			assert.InDelta(t, tt.want, ctrl.Fuse(30, 90), 0.001)
		})
	}
}

func TestController_CriticOnlyWeightAcceptsDespiteViolations(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	d.On("Draft", mock.Anything, mock.Anything).Return(draftN(1), model.TokenUsage{}, nil).Once()
	c.On("Critique", mock.Anything, mock.Anything, mock.Anything).Return(critique(95, 95, 95), model.TokenUsage{}).Once()
	v.On("Validate", mock.Anything, mock.Anything).Return(model.ValidationResult{Score: 0}).Once()

	cfg := testConfig()
	cfg.ValidatorWeight = 0
	out := NewController(d, c, v, cfg).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateAccepted, out.State)
}

func TestController_FailedDraftConsumesAttempt(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool { return in.Attempt == 1 })).
		Return(nil, model.TokenUsage{InputTokens: 7}, writer.ErrMalformedDraft).Once()
	d.On("Draft", mock.Anything, mock.MatchedBy(func(in writer.DraftInput) bool {
		return in.Attempt == 2 && strings.Contains(in.Feedback, "SUBJECT/BODY")
	})).Return(draftN(2), model.TokenUsage{}, nil).Once()
	c.On("Critique", mock.Anything, mock.Anything, mock.Anything).Return(critique(90, 90, 90), model.TokenUsage{}).Once()
	v.On("Validate", mock.Anything, mock.Anything).Return(model.ValidationResult{Score: 100}).Once()

	out := NewController(d, c, v, testConfig()).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateAccepted, out.State)
	require.Len(t, out.History, 2)
	assert.True(t, out.History[0].Failed())
	assert.Zero(t, out.History[0].Decision.FusedScore)
	assert.Equal(t, 2, out.Final.Number)
	assert.Equal(t, 7, out.Usage.InputTokens)
	c.AssertNumberOfCalls(t, "Critique", 1)
}

func TestController_AllAttemptsFail(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	d.On("Draft", mock.Anything, mock.Anything).Return(nil, model.TokenUsage{}, errors.New("anthropic: status 500"))

	out := NewController(d, c, v, testConfig()).Run(context.Background(), lakeside, nil, "")

	assert.Equal(t, StateExhausted, out.State)
	assert.Nil(t, out.Final)
	assert.Len(t, out.History, 3)
	for _, a := range out.History {
		assert.Contains(t, a.Error, "status 500")
	}
	c.AssertNotCalled(t, "Critique", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_StopsWhenContextEnds(t *testing.T) {
	d, c, v := &mockDrafter{}, &mockCritic{}, &mockValidator{}
	ctx, cancel := context.WithCancel(context.Background())
	d.On("Draft", mock.Anything, mock.Anything).Return(draftN(1), model.TokenUsage{}, nil).Once().
		Run(func(mock.Arguments) { cancel() })
	c.On("Critique", mock.Anything, mock.Anything, mock.Anything).Return(critique(20, 20, 20), model.TokenUsage{}).Once()
	v.On("Validate", mock.Anything, mock.Anything).Return(model.ValidationResult{Score: 20}).Once()

	out := NewController(d, c, v, testConfig()).Run(ctx, lakeside, nil, "")

	assert.Equal(t, StateExhausted, out.State)
	assert.Len(t, out.History, 1)
	assert.Equal(t, model.DecisionExhausted, out.History[0].Decision.Decision)
}

func TestController_Feedback(t *testing.T) {
	ctrl := NewController(nil, nil, nil, testConfig())

	crit := critique(80, 40, 60)
	crit.Feedback = "- Remove the tuition claim\nRemove the tuition claim\n"
	val := model.ValidationResult{Violations: []model.Violation{
		{Kind: model.ViolationTone, Message: `Avoid casual word "awesome"`},
	}}

	got := ctrl.Feedback(crit, val)
	assert.Equal(t, "ISSUES TO FIX:\n"+
		"- Avoid casual word \"awesome\"\n"+
		"- Remove the tuition claim\n"+
		"- Improve accuracy (scored 40): use only facts from the organization data", got)

	neutral := writer.Neutral("timeout")
	assert.Empty(t, ctrl.Feedback(neutral, model.ValidationResult{}))
}
