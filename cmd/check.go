package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/quality"
	"github.com/sells-group/outreach-cli/internal/writer"
)

var (
	checkOrg   string
	checkDraft string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the deterministic quality checks on one draft",
	Long: `Validates a draft against an organization record without calling any model.
The draft file may use the "SUBJECT: / BODY:" layout; otherwise the whole
file is the body.

Example:
  outreach check --org lakeside.json --draft draft.txt`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}
		return runCheck(cfg, checkOrg, checkDraft, cmd.OutOrStdout())
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkOrg, "org", "", "organization record JSON file (required)")
	checkCmd.Flags().StringVar(&checkDraft, "draft", "", "draft text file (required)")
	_ = checkCmd.MarkFlagRequired("org")
	_ = checkCmd.MarkFlagRequired("draft")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(c *config.Config, orgPath, draftPath string, out io.Writer) error {
	raw, err := os.ReadFile(orgPath)
	if err != nil {
		return eris.Wrapf(err, "check: read %s", orgPath)
	}
	var org model.OrganizationRecord
	if err := json.Unmarshal(raw, &org); err != nil {
		return eris.Wrap(err, "check: parse organization")
	}

	text, err := os.ReadFile(draftPath)
	if err != nil {
		return eris.Wrapf(err, "check: read %s", draftPath)
	}
	draft := parseDraftFile(string(text))

	rules := quality.DefaultRules()
	if c.Quality.RulesFile != "" {
		if rules, err = quality.LoadRules(c.Quality.RulesFile); err != nil {
			return eris.Wrap(err, "check: load rules")
		}
	}
	res := quality.NewValidator(rules, validatorOptions(c)).Validate(draft, org)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func parseDraftFile(text string) *model.Draft {
	subject, body := writer.ParseDraft(text)
	if subject == "" && body == "" {
		body = strings.TrimSpace(text)
	}
	return &model.Draft{Subject: subject, Body: body, Attempt: 1}
}
