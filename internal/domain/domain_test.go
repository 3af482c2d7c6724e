package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoleKey(t *testing.T) {
	tests := []struct {
		in      string
		want    RoleKey
		wantErr bool
	}{
		{in: "STRATEGIST", want: RoleStrategist},
		{in: "risk-officer", want: RoleRiskOfficer},
		{in: "Financial Analyst", want: RoleFinancialAnalyst},
		{in: " data_scientist ", want: RoleDataScientist},
		{in: "advisor_digest", want: RoleAdvisorDigest},
		{in: "janitor", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRoleKey(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownRole, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestContractForEveryRole(t *testing.T) {
	for _, r := range append(AllRoles(), RoleAdvisorDigest) {
		c := ContractFor(r)
		assert.Equal(t, r, c.Key())
		assert.NotEmpty(t, c.Title())
		// 示例对象本身必须满足契约
		assert.NoError(t, ValidateOutput(c, Skeleton(c)), r)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(SchemaHint(c)), &decoded))
		assert.Equal(t, c.SchemaName(), decoded["_schema"])
	}
}

func TestValidateOutputReportsMissingAndWrongType(t *testing.T) {
	c := ContractFor(RoleRiskOfficer)
	err := ValidateOutput(c, map[string]any{
		"summary":    "ok",
		"key_points": "not a list",
		"risks":      []any{"should be objects"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContractViolation))
	assert.Contains(t, err.Error(), "recommendation missing")
	assert.Contains(t, err.Error(), "key_points has wrong type")
	assert.Contains(t, err.Error(), "risks has wrong type")
}

func TestWeightMapNormalize(t *testing.T) {
	w := WeightMap{RoleStrategist: 2, RoleRiskOfficer: 1, RoleLegalAdvisor: 1}
	n := w.Normalize()
	assert.InDelta(t, 0.5, n[RoleStrategist], 1e-9)
	assert.True(t, n.IsNormalized())

	zero := WeightMap{RoleStrategist: 0, RoleRiskOfficer: 0}
	u := zero.Normalize()
	assert.InDelta(t, 0.5, u[RoleStrategist], 1e-9)
	assert.InDelta(t, 0.5, u[RoleRiskOfficer], 1e-9)
}

func TestWeightMapEmphasis(t *testing.T) {
	w := WeightMap{
		RoleStrategist:       0.4,
		RoleRiskOfficer:      0.25,
		RoleFinancialAnalyst: 0.2,
		RoleLegalAdvisor:     0.15,
	}
	assert.Equal(t, EmphasisLead, w.Emphasis(RoleStrategist))
	assert.Equal(t, EmphasisStandard, w.Emphasis(RoleRiskOfficer))
	assert.Equal(t, EmphasisSupporting, w.Emphasis(RoleLegalAdvisor))
	assert.Equal(t, []RoleKey{RoleStrategist, RoleRiskOfficer, RoleFinancialAnalyst, RoleLegalAdvisor}, w.RankedRoles())
}

func TestLineupBaseline(t *testing.T) {
	l := Lineup{Roles: []LineupRole{
		{RoleKey: RoleStrategist, Weight: 3, Position: 2},
		{RoleKey: RoleRiskOfficer, Weight: 1, Position: 1},
	}}
	w, err := l.Baseline()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, w[RoleStrategist], 1e-9)
	assert.Equal(t, []RoleKey{RoleRiskOfficer, RoleStrategist}, l.RoleKeys())

	_, err = Lineup{}.Baseline()
	assert.ErrorIs(t, err, ErrEmptyLineup)

	dup := Lineup{Roles: []LineupRole{{RoleKey: RoleStrategist}, {RoleKey: RoleStrategist}}}
	assert.ErrorIs(t, dup.Validate(), ErrDuplicateRole)

	digest := Lineup{Roles: []LineupRole{{RoleKey: RoleAdvisorDigest}}}
	assert.ErrorIs(t, digest.Validate(), ErrUnknownRole)
}

func TestLineupBaselineZeroWeightsUseDefaults(t *testing.T) {
	w, err := DefaultLineup().Baseline()
	require.NoError(t, err)
	assert.True(t, w.IsNormalized())
	assert.Greater(t, w[RoleStrategist], w[RoleLegalAdvisor])

	zero := Lineup{Roles: []LineupRole{{RoleKey: RoleStrategist}, {RoleKey: RoleLegalAdvisor}}}
	w, err = zero.Baseline()
	require.NoError(t, err)
	assert.InDelta(t, 1.2/2.0, w[RoleStrategist], 1e-9)
}

func TestDecodeConsensus(t *testing.T) {
	c, err := DecodeConsensus(ConsensusSkeleton())
	require.NoError(t, err)
	assert.NotEmpty(t, c.Decision)
	assert.Equal(t, []string{"Advisor-specific point"}, c.AdvisorBullets["STRATEGIST"])

	c, err = DecodeConsensus(map[string]any{"decision": "go", "summary": "s", "confidence": 1.7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Confidence)

	_, err = DecodeConsensus(map[string]any{"summary": "s"})
	assert.ErrorIs(t, err, ErrInvalidConsensus)
}
