package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/source"
	"github.com/sells-group/outreach-cli/internal/tabular"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// generateOpts are the generate command's flags.
type generateOpts struct {
	Input       string
	NotionDB    string
	Template    string
	Output      string
	Offline     bool
	DryRun      bool
	Limit       int
	Concurrency int
}

var genOpts generateOpts

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate outreach emails for a batch of organizations",
	Long: `Reads organizations from a CSV/XLSX file or a Notion database, researches a
contact at each one, and drafts, critiques, and validates an email per
organization from the template.

Output format follows the --output extension: .csv and .xlsx hold the review
columns, .json holds the full batch (input for the drafts command).

Examples:
  # Dry run, parse input only
  outreach generate --input schools.csv --output out.csv --dry-run

  # Offline (stub generator, contacts from the input's contact columns)
  outreach generate --input schools.csv --template pitch.txt --output out.json --offline

  # Real APIs, organizations queued in Notion
  outreach generate --notion-db <id> --template pitch.txt --output out.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runGenerate(ctx, cfg, genOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genOpts.Input, "input", "", "organizations CSV or XLSX file")
	f.StringVar(&genOpts.NotionDB, "notion-db", "", "Notion database ID to load organizations from (default from config)")
	f.StringVar(&genOpts.Template, "template", "", "email template file")
	f.StringVar(&genOpts.Output, "output", "", "output file: .csv, .xlsx or .json (required)")
	f.BoolVar(&genOpts.Offline, "offline", false, "use the stub generator and input contact columns (no API keys needed)")
	f.BoolVar(&genOpts.DryRun, "dry-run", false, "parse input and print organizations, skip generation")
	f.IntVar(&genOpts.Limit, "limit", 0, "max organizations to process (0 = all)")
	f.IntVar(&genOpts.Concurrency, "concurrency", 0, "max organizations in flight (default from config)")
	_ = generateCmd.MarkFlagRequired("output")
	generateCmd.MarkFlagsMutuallyExclusive("input", "notion-db")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(ctx context.Context, c *config.Config, o generateOpts, out io.Writer) error {
	if o.NotionDB == "" && o.Input == "" {
		o.NotionDB = c.Notion.OrgDB
	}
	if o.Concurrency > 0 {
		c.Batch.Concurrency = o.Concurrency
	}

	in, src, err := loadOrganizations(ctx, c, o)
	if err != nil {
		return err
	}
	for _, rej := range in.Rejections {
		zap.L().Warn("generate: row rejected",
			zap.Int("row", rej.Row),
			zap.String("name", rej.Name),
			zap.Strings("missing", rej.Missing),
		)
	}

	orgs := in.Records
	if o.Limit > 0 && o.Limit < len(orgs) {
		orgs = orgs[:o.Limit]
	}
	if limit := c.Batch.MaxOrganizations; limit > 0 && len(orgs) > limit {
		return eris.Errorf("generate: %d organizations exceeds batch.max_organizations (%d)", len(orgs), limit)
	}
	zap.L().Info("generate: organizations loaded",
		zap.Int("organizations", len(orgs)),
		zap.Int("rejected", len(in.Rejections)),
	)

	if o.DryRun {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(orgs)
	}
	if len(orgs) == 0 {
		return eris.New("generate: no valid organizations in input")
	}

	template, err := readTemplate(o.Template)
	if err != nil {
		return err
	}

	env, err := initPipeline(ctx, c, o.Offline)
	if err != nil {
		return eris.Wrap(err, "generate: init pipeline")
	}
	env.onRecord = func(i int, rec model.EmailRecord) {
		zap.L().Info(fmt.Sprintf("======== organization %d/%d ========", i+1, len(orgs)),
			zap.String("name", rec.Organization.Name),
			zap.String("status", string(rec.Status)),
			zap.Int("confidence", rec.FinalConfidence),
		)
	}

	batch := env.Run(ctx, orgs, template)

	if err := tabular.WriteFile(o.Output, batch); err != nil {
		return eris.Wrap(err, "generate: write output")
	}

	if src != nil && !o.Offline {
		// The run already produced output; a Notion write-back failure is
		// logged, not returned.
		updated, err := src.MarkResults(context.WithoutCancel(ctx), batch)
		if err != nil {
			zap.L().Error("generate: notion status update", zap.Int("updated", updated), zap.Error(err))
		}
	}

	st := batch.Stats()
	fmt.Fprintf(out, "%d emails written to %s: %d accepted, %d flagged, avg confidence %d, cost $%.4f\n", //nolint:errcheck
		st.Total, o.Output, st.Accepted, st.Flagged, st.AvgConfidence, batch.Usage.Cost)
	if !batch.Complete {
		fmt.Fprintln(out, "batch interrupted: unprocessed organizations are marked cancelled") //nolint:errcheck
	}
	return nil
}

// loadOrganizations reads the batch input from a file or Notion. The Notion
// source is returned so results can be written back.
func loadOrganizations(ctx context.Context, c *config.Config, o generateOpts) (*tabular.Input, *source.Notion, error) {
	if o.Input != "" {
		in, err := tabular.ReadFile(o.Input, tabular.ReadOptions{Charset: c.Input.Charset, Sheet: c.Input.Sheet})
		if err != nil {
			return nil, nil, eris.Wrap(err, "generate: read input")
		}
		return in, nil, nil
	}
	if o.NotionDB == "" {
		return nil, nil, eris.New("generate: --input or --notion-db is required")
	}
	if c.Notion.Token == "" {
		return nil, nil, eris.New("generate: notion.token is required to load from Notion")
	}

	client := notion.NewClient(c.Notion.Token, notion.WithRateLimit(c.Notion.RPS))
	guard := resilience.NewGuard("notion", resilience.GuardConfig{
		Retry:            resilience.DefaultRetryPolicy(),
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	})
	src := source.NewNotion(client, o.NotionDB, source.NotionOptions{
		StatusProperty: c.Notion.StatusProperty,
		QueuedStatus:   c.Notion.QueuedStatus,
		DraftedStatus:  c.Notion.DraftedStatus,
		ReviewStatus:   c.Notion.ReviewStatus,
		Guard:          guard,
	})
	in, err := src.Load(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "generate: load notion organizations")
	}
	return in, src, nil
}

// readTemplate returns the template text. No path means no template.
func readTemplate(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "generate: read template %s", path)
	}
	return strings.TrimSpace(string(b)), nil
}
