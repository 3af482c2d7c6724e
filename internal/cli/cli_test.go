package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/pkg/audit"
)

func executeCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PROMPT_DIR", "")
	t.Setenv("RULES_PATH", filepath.Join(t.TempDir(), "rules.yaml"))
	t.Setenv("PRESETS_PATH", filepath.Join(t.TempDir(), "presets.toml"))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConsultRendersDecision(t *testing.T) {
	stdout, err := executeCLI(t, "", "consult", "-q", "Should we tighten the budget?", "--preset", "finance-first")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Council Decision")
	assert.Contains(t, stdout, "status: completed")
	assert.Contains(t, stdout, "Next steps")
}

func TestConsultJSONOutput(t *testing.T) {
	stdout, err := executeCLI(t, "", "consult", "-q", "Launch in Q3?", "--lineup", "strategist=2,risk_officer", "--context", "region=EU", "--json")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(stdout)), stdout)

	var resp struct {
		Status      string              `json:"status"`
		RoleOutputs []domain.RoleOutput `json:"role_outputs"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Len(t, resp.RoleOutputs, 2)
}

func TestConsultRequiresQuestion(t *testing.T) {
	_, err := executeCLI(t, "", "consult")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "question" not set`)
}

func TestWeightsShowsEmphasisWithoutNumbers(t *testing.T) {
	stdout, err := executeCLI(t, "", "weights", "-q", "Cut cost to protect profit", "--preset", "balanced")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Financial Analyst")
	assert.Contains(t, stdout, "lead voice")
	assert.NotContains(t, stdout, "0.")
}

func TestParseLineup(t *testing.T) {
	lineup, err := parseLineup("strategist=1.5, legal-advisor ,DATA_SCIENTIST=0.5")
	require.NoError(t, err)
	require.Len(t, lineup.Roles, 3)
	assert.Equal(t, domain.RoleLegalAdvisor, lineup.Roles[1].RoleKey)
	assert.Equal(t, 1.0, lineup.Roles[1].Weight)
	assert.Equal(t, 3, lineup.Roles[2].Position)

	_, err = parseLineup("strategist,strategist")
	assert.Error(t, err)
	_, err = parseLineup("chair=1")
	assert.Error(t, err)
	_, err = parseLineup("strategist=lots")
	assert.Error(t, err)
}

func signedEntry(t *testing.T, signer *audit.Signer, id string) audit.Entry {
	t.Helper()
	e := audit.Entry{
		ID:             id,
		ConsultationID: "c-1",
		Kind:           audit.KindConsensusAssembled,
		Payload:        map[string]any{"decision": "Go", "confidence": 0.72},
		CreatedAt:      time.Date(2026, 2, 3, 4, 5, 6, 7000000, time.UTC),
		Partition:      "2026-02-03",
	}
	e.Signature = signer.Sign(e.Signable())
	return e
}

func TestVerifyAcceptsExportedEntries(t *testing.T) {
	signer, err := audit.NewSigner("k1")
	require.NoError(t, err)
	doc := map[string]any{"entries": []audit.Entry{signedEntry(t, signer, "a-1"), signedEntry(t, signer, "a-2")}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "audit.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	stdout, err := executeCLI(t, "", "verify", "--key", "k1", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "a-1")
	assert.Contains(t, stdout, "a-2")
}

func TestVerifyDetectsTampering(t *testing.T) {
	signer, err := audit.NewSigner("k1")
	require.NoError(t, err)
	entry := signedEntry(t, signer, "a-1")
	entry.Payload["decision"] = "No-go"
	data, err := json.Marshal(entry)
	require.NoError(t, err)

	stdout, err := executeCLI(t, string(data), "verify", "--key", "k1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, stdout, "FAIL")

	_, err = executeCLI(t, string(data), "verify", "--key", "other")
	assert.Error(t, err)
}

func TestVerifyRequiresKey(t *testing.T) {
	t.Setenv("COUNCIL_AUDIT_KEY", "")
	_, err := executeCLI(t, "{}", "verify")
	require.Error(t, err)
}
