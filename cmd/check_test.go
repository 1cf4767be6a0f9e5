package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

const lakesideJSON = `{"name":"Lakeside School","fit":"High","tuition":"$30,000","pain_signal":"Enrollment decline"}`

func TestRunCheck_ReportsViolations(t *testing.T) {
	org := writeTemp(t, "org.json", lakesideJSON)
	draft := writeTemp(t, "draft.txt", "SUBJECT: Quick question\nBODY:\nHey, you must reply. Your $45,000 tuition is too high.\n")

	var out bytes.Buffer
	require.NoError(t, runCheck(testConfig(t), org, draft, &out))

	var res model.ValidationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Less(t, res.Score, 100)
	assert.True(t, res.Has(model.ViolationAccuracy), "unsupported tuition figure should be an accuracy violation")
	assert.True(t, res.Has(model.ViolationLength))
}

func TestRunCheck_BadInputs(t *testing.T) {
	draft := writeTemp(t, "draft.txt", "hello")
	badOrg := writeTemp(t, "org.json", "{not json")

	err := runCheck(testConfig(t), "missing.json", draft, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check: read missing.json")

	err = runCheck(testConfig(t), badOrg, draft, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check: parse organization")
}

func TestParseDraftFile(t *testing.T) {
	d := parseDraftFile("SUBJECT: Hi\nBODY:\nDear Jane,\nText")
	assert.Equal(t, "Hi", d.Subject)
	assert.Equal(t, "Dear Jane,\nText", d.Body)

	plain := parseDraftFile("  Dear Jane,\nJust a body.\n")
	assert.Empty(t, plain.Subject)
	assert.True(t, strings.HasPrefix(plain.Body, "Dear Jane,"))
}
