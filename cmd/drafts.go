package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/tabular"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

// draftsOpts are the drafts command's flags.
type draftsOpts struct {
	Input       string
	SkipFlagged bool
	Auth        bool
	Sender      string
}

var drOpts draftsOpts

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Create Gmail drafts from a generated batch",
	Long: `Reads a batch written by "generate --output <file>.json" and creates one Gmail
draft per email that has a recipient. Nothing is sent.

Run once with --auth to authorize Gmail access and save the OAuth token.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("drafts"); err != nil {
			return err
		}
		if drOpts.Auth {
			return gmail.Authorize(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile, cmd.InOrStdin(), cmd.OutOrStdout())
		}
		if drOpts.Input == "" {
			return eris.New("drafts: --input is required")
		}

		client, err := gmail.NewClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
		if err != nil {
			return err
		}
		return runDrafts(ctx, cfg, client, drOpts, cmd.OutOrStdout())
	},
}

func init() {
	draftsCmd.Flags().StringVar(&drOpts.Input, "input", "", "batch JSON written by generate")
	draftsCmd.Flags().BoolVar(&drOpts.SkipFlagged, "skip-flagged", false, "skip flagged emails that were not edited in review")
	draftsCmd.Flags().BoolVar(&drOpts.Auth, "auth", false, "run the Gmail OAuth flow and save the token")
	draftsCmd.Flags().StringVar(&drOpts.Sender, "sender", "", "From address (default from config)")
	rootCmd.AddCommand(draftsCmd)
}

func runDrafts(ctx context.Context, c *config.Config, client gmail.Client, o draftsOpts, out io.Writer) error {
	f, err := os.Open(o.Input)
	if err != nil {
		return eris.Wrapf(err, "drafts: open %s", o.Input)
	}
	batch, err := tabular.ReadJSON(f)
	_ = f.Close()
	if err != nil {
		return eris.Wrap(err, "drafts: read batch")
	}

	sender := o.Sender
	if sender == "" {
		sender = c.Gmail.Sender
	}
	guard := resilience.NewGuard("gmail", resilience.GuardConfig{
		RPS:              5,
		Timeout:          30 * time.Second,
		Retry:            resilience.DefaultRetryPolicy(),
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	})

	exp := export.New(client, guard, export.Options{Sender: sender, SkipFlagged: o.SkipFlagged})
	res, err := exp.Export(ctx, batch.Records)
	fmt.Fprintf(out, "%d drafts created, %d skipped, %d failed\n", len(res.Created), len(res.Skipped), len(res.Failures)) //nolint:errcheck
	for _, fl := range res.Failures {
		retry := ""
		if fl.Retryable() {
			retry = " (retryable)"
		}
		fmt.Fprintf(out, "  failed: %s: %s%s\n", fl.Key, fl.Error, retry) //nolint:errcheck
	}
	if err != nil {
		return err
	}
	if len(res.Created) == 0 && len(res.Failures) > 0 {
		zap.L().Error("drafts: every draft failed", zap.Int("failed", len(res.Failures)))
		return eris.New("drafts: no drafts created")
	}
	return nil
}
