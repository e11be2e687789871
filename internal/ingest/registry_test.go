package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedRegistry(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	assert.Equal(t, []string{"VT", "NH", "ME", "MA", "NY", "RI", "CT", "PA"}, reg.Codes())

	for _, j := range reg.Jurisdictions {
		assert.NotEmpty(t, j.Extraction.Strategies, j.Code)
		assert.Equal(t, 40, j.Extraction.MaxRecords, j.Code)
		assert.Equal(t, 30, j.Fetch.TimeoutSeconds, j.Code)
		assert.Equal(t, 2, j.Fetch.MaxRetries, j.Code)
		assert.NotEmpty(t, j.Fetch.UserAgent, j.Code)
		assert.NotEmpty(t, j.Keywords[LineHighway], j.Code)
	}

	ma, ok := reg.Lookup("ma")
	require.True(t, ok)
	assert.Equal(t, "colly", ma.Engine)
	assert.Equal(t, []string{StrategyTable, StrategyBlocks, StrategyPositional, StrategyValues}, ma.Extraction.Strategies)

	vt, _ := reg.Lookup("VT")
	assert.Equal(t, "http", vt.Engine)
	assert.Equal(t, []string{"town", "location", "project name"}, vt.Extraction.Columns[RoleLocation])
	assert.Equal(t, DefaultColumns()[RoleCost], vt.Extraction.Columns[RoleCost])

	pa, _ := reg.Lookup("PA")
	assert.Equal(t, []string{"ECMS", "Project Number", "Project No."}, pa.Extraction.Labels[FieldProjectNumber])
	assert.Equal(t, DefaultLabels()[FieldCost], pa.Extraction.Labels[FieldCost])
	assert.Equal(t, []string{"Advertise Date", "Ad Date"}, pa.Extraction.Labels[FieldAdDate])
	assert.Equal(t, []string{"Let Date", "Letting Date"}, pa.Extraction.Labels[FieldLetDate])
}

func TestRegistrySelect(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	all, err := reg.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	some, err := reg.Select([]string{"nh", " VT "})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "VT", some[0].Code)
	assert.Equal(t, "NH", some[1].Code)

	_, err = reg.Select([]string{"VT", "ZZ"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
	assert.Contains(t, err.Error(), "ZZ")
}

func TestParseRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no jurisdictions", "jurisdictions: []\n"},
		{"unknown format", `
jurisdictions:
  - code: VT
    name: VTrans
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: docx
`},
		{"duplicate code", `
jurisdictions:
  - code: VT
    name: VTrans
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: pdf
  - code: VT
    name: VTrans again
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: pdf
`},
		{"record cap out of range", `
jurisdictions:
  - code: NH
    name: NHDOT
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: pdf
    extraction:
      max_records: 80
`},
		{"unknown strategy", `
jurisdictions:
  - code: NH
    name: NHDOT
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: pdf
    extraction:
      strategies: [guess]
`},
		{"unknown business line", `
jurisdictions:
  - code: NH
    name: NHDOT
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: pdf
    keywords:
      steel: [rebar]
`},
		{"malformed yaml", "jurisdictions: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseRegistryExpandsEnv(t *testing.T) {
	t.Setenv("CTDOT_FEATURE_URL", "https://services.example.gov/ctdot/query")

	reg, err := ParseRegistry([]byte(`
jurisdictions:
  - code: CT
    name: CTDOT
    bid_url: ${CTDOT_FEATURE_URL}
    portal_url: https://portal.ct.gov/DOT
    format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "https://services.example.gov/ctdot/query", reg.Jurisdictions[0].BidURL)
	assert.Equal(t, []string{StrategyTable}, reg.Jurisdictions[0].Extraction.Strategies)
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jurisdictions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fetch:
  timeout_seconds: 5
jurisdictions:
  - code: RI
    name: RIDOT
    bid_url: https://example.gov/bids
    portal_url: https://example.gov/portal
    format: html
    fetch:
      max_retries: 4
`), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	ri := reg.Jurisdictions[0]
	assert.Equal(t, 5, ri.Fetch.TimeoutSeconds)
	assert.Equal(t, 4, ri.Fetch.MaxRetries)
	assert.Equal(t, 1.0, ri.Fetch.RateLimitRPS)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSplitCodes(t *testing.T) {
	assert.Equal(t, []string{"VT", "NH"}, SplitCodes(" vt, NH ,,"))
	assert.Nil(t, SplitCodes(""))
}
