package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
)

const schoolsCSV = `School Name,Fit,Tuition,Pain Signal,Contact Name,Contact Title,Contact Email
Lakeside School,High,$30000,Enrollment decline,Jane Smith,Head of School,jsmith@lakeside.edu
Hillcrest Academy,Medium,$25000,Staff turnover,,,
Unnamed Row,,,,,,
`

// testConfig loads defaults and removes delays so offline runs are fast.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load()
	require.NoError(t, err)
	c.Quality.RetryDelayMs = 0
	c.Generation.Provider = "stub"
	c.Search.Enabled = false
	c.Notion.OrgDB = ""
	c.Quality.RulesFile = ""
	return c
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
