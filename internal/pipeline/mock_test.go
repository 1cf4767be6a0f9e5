package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/writer"
)

// --- Drafter Mock ---

type mockDrafter struct {
	mock.Mock
}

func (m *mockDrafter) Draft(ctx context.Context, in writer.DraftInput) (*model.Draft, model.TokenUsage, error) {
	args := m.Called(ctx, in)
	var d *model.Draft
	if args.Get(0) != nil {
		d = args.Get(0).(*model.Draft)
	}
	return d, args.Get(1).(model.TokenUsage), args.Error(2)
}

// --- Critic Mock ---

type mockCritic struct {
	mock.Mock
}

func (m *mockCritic) Critique(ctx context.Context, d *model.Draft, org model.OrganizationRecord) (model.Critique, model.TokenUsage) {
	args := m.Called(ctx, d, org)
	return args.Get(0).(model.Critique), args.Get(1).(model.TokenUsage)
}

// --- Validator Mock ---

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) Validate(d *model.Draft, org model.OrganizationRecord) model.ValidationResult {
	args := m.Called(d, org)
	return args.Get(0).(model.ValidationResult)
}

// --- Researcher fake ---

type fakeResearcher struct {
	fn func(ctx context.Context, org model.OrganizationRecord) (*research.Result, error)
}

func (f fakeResearcher) Research(ctx context.Context, org model.OrganizationRecord) (*research.Result, error) {
	return f.fn(ctx, org)
}

func contactResult(confidence int) *research.Result {
	c := model.Contact{Name: "Jane Smith", Email: "jsmith@lakeside.edu", Title: "Head of School", Confidence: confidence}
	return &research.Result{
		Candidates: []model.Contact{c},
		Selected:   &c,
		Queries:    map[string]int{"jina": 1},
	}
}

func draftN(n int) *model.Draft {
	return &model.Draft{Subject: "Hello", Body: "Dear Jane,\n\nBody.\n\nBest regards,", Attempt: n}
}

func critique(tone, accuracy, overall int) model.Critique {
	return model.Critique{ToneScore: tone, AccuracyScore: accuracy, OverallScore: overall}
}

type flatPricer float64

func (p flatPricer) Search(_ string, n int) float64 { return float64(p) * float64(n) }
