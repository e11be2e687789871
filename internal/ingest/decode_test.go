package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDecodeHTML_BlockText(t *testing.T) {
	page := `<html><head><style>p { color: red }</style></head><body>
	<div>Location:<span> Keene</span></div>
	<table><tr><td>Estimated Cost:</td><td>$1,100,000</td></tr></table>
	<noscript>enable javascript</noscript>
	</body></html>`

	content, err := Decode(FormatHTML, []byte(page), "")
	require.NoError(t, err)

	assert.Contains(t, content.Text, "Location: Keene")
	assert.Contains(t, content.Text, "Estimated Cost: $1,100,000")
	assert.NotContains(t, content.Text, "color")
	assert.NotContains(t, content.Text, "javascript")
	assert.Empty(t, content.Rows)
}

const tableFixture = `<html><body>
<table>
  <tr><th colspan="5">Construction Status Report</th></tr>
  <tr><th>Project Number</th><th>Location</th><th>Description</th><th>Estimate</th><th>Let Date</th></tr>
  <tr><td>608123</td><td>district 3</td><td>Paving of Route 9</td><td>$1,200,000</td><td>3/15/2026</td></tr>
  <tr><td>608124</td><td></td><td>Orphan row without a place</td><td>$900,000</td><td>4/1/2026</td></tr>
  <tr><td>608125</td><td>WORCESTER</td><td>Signal upgrades</td><td>TBD</td><td>not scheduled</td></tr>
</table>
</body></html>`

func TestTableStrategy_HTMLTable(t *testing.T) {
	j := testJurisdiction("MA", FormatHTMLTable)
	res := NewPipeline(&MockFetcher{}).ExtractContent(j, []byte(tableFixture))

	assert.Equal(t, StrategyTable, res.Strategy)
	require.Len(t, res.Opportunities, 2)

	paving := res.Opportunities[0]
	require.NotNil(t, paving.Location)
	assert.Equal(t, "District 3", *paving.Location)
	assert.Equal(t, "608123", *paving.ProjectID)
	assert.Equal(t, int64(1200000), *paving.CostLow)
	assert.Equal(t, "$1.2M", paving.CostDisplay)
	assert.Equal(t, "2026-03-15", *paving.LetDate)
	assert.Equal(t, []string{LineHighway, LineHotMixAsphalt}, paving.BusinessLines)

	signals := res.Opportunities[1]
	assert.Equal(t, "Worcester", *signals.Location)
	assert.Nil(t, signals.CostLow)
	assert.Equal(t, "See Portal", signals.CostDisplay)
	assert.Nil(t, signals.LetDate)
}

func TestDetectHeaderNeedsLocation(t *testing.T) {
	rows := []Row{
		{"Estimate", "Let Date"},
		{"$1,000,000", "1/1/2026"},
	}
	idx, _ := detectHeader(rows, DefaultColumns(), 10)
	assert.Equal(t, -1, idx)
}

func TestDecodeCSV(t *testing.T) {
	csvBody := "Town,Work Type,Estimated Cost,Advertise Date\n" +
		"Burlington,Resurfacing,\"250,000\",3/15/2023\n" +
		"Montpelier,Bridge Repair,1800000\n" +
		"Barre,Paving,\"500,000\",45000\n"

	j := testJurisdiction("VT", FormatCSV)
	res := NewPipeline(&MockFetcher{}).ExtractContent(j, []byte(csvBody))

	assert.Equal(t, StrategyTable, res.Strategy)
	require.Len(t, res.Opportunities, 3)

	first := res.Opportunities[0]
	assert.Equal(t, "Burlington", *first.Location)
	assert.Equal(t, "Resurfacing", *first.ProjectType)
	assert.Equal(t, "Resurfacing", first.Description)
	assert.Equal(t, int64(250000), *first.CostLow)
	assert.Equal(t, "2023-03-15", *first.AdDate)

	second := res.Opportunities[1]
	assert.Equal(t, int64(1800000), *second.CostLow)
	assert.Nil(t, second.AdDate)

	// CSV cells are text, so a bare serial number is not a date.
	third := res.Opportunities[2]
	assert.Equal(t, int64(500000), *third.CostLow)
	assert.Nil(t, third.AdDate)
}

func TestDecodeFeatureService(t *testing.T) {
	body := `{"features":[
	  {"attributes":{"Description":"I-84 viaduct rehabilitation","Town":"Hartford","Cost Estimate":48000000,"Advertise Date":1767225600000}},
	  {"attributes":{"Description":"Culvert lining","Town":"Danbury","Cost Estimate":null,"Advertise Date":null}}
	]}`

	content, err := Decode(FormatJSON, []byte(body), "")
	require.NoError(t, err)
	require.Len(t, content.Rows, 3)
	assert.Equal(t, Row{"Advertise Date", "Cost Estimate", "Description", "Town"}, content.Rows[0])

	j := testJurisdiction("CT", FormatJSON)
	res := NewPipeline(&MockFetcher{}).ExtractContent(j, []byte(body))
	require.Len(t, res.Opportunities, 2)

	viaduct := res.Opportunities[0]
	assert.Equal(t, int64(48000000), *viaduct.CostLow)
	assert.Equal(t, "$48.0M", viaduct.CostDisplay)
	assert.Equal(t, "2026-01-01", *viaduct.AdDate)
	assert.Equal(t, "Hartford", *viaduct.Location)

	lining := res.Opportunities[1]
	assert.Nil(t, lining.CostLow)
	assert.Nil(t, lining.AdDate)
}

func TestDecodeGeoJSONProperties(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"Location":"Stamford","Budget":"$3,000,000"}}]}`

	content, err := Decode(FormatJSON, []byte(body), "")
	require.NoError(t, err)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, Row{"$3,000,000", "Stamford"}, content.Rows[1])
}

func TestDecodeXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Anticipated Advertising Schedule"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"Town", "Description", "Cost Estimate", "Advertise Date"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"St. Johnsbury", "Interstate 91 bridge joints", 3400000, 46100}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A5", &[]interface{}{"Rutland", "Concrete sidewalk", 450000}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A6", &[]interface{}{"Barre", "Paving overlay", 900000, "46100"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	content, err := Decode(FormatXLSX, buf.Bytes(), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content.Text, "Anticipated Advertising Schedule"))

	j := testJurisdiction("VT", FormatXLSX)
	res := NewPipeline(&MockFetcher{}).ExtractContent(j, buf.Bytes())
	require.Len(t, res.Opportunities, 3)

	joints := res.Opportunities[0]
	assert.Equal(t, "St. Johnsbury", *joints.Location)
	assert.Equal(t, int64(3400000), *joints.CostLow)
	require.NotNil(t, joints.AdDate)
	assert.Equal(t, "2026-03-19", *joints.AdDate)
	assert.Equal(t, []string{LineHighway}, joints.BusinessLines)

	sidewalk := res.Opportunities[1]
	assert.Equal(t, []string{LineReadyMix}, sidewalk.BusinessLines)
	assert.Nil(t, sidewalk.AdDate)

	// Digits stored as text are not read as a serial date.
	overlay := res.Opportunities[2]
	assert.Equal(t, int64(900000), *overlay.CostLow)
	assert.Nil(t, overlay.AdDate)
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := Decode(Format("docx"), []byte("x"), "")
	assert.Error(t, err)
}
