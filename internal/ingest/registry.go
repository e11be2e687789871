package ingest

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed config/jurisdictions.yaml
var jurisdictionsYAML []byte

// Labeled fields recovered from free text.
const (
	FieldLocation      = "location"
	FieldDescription   = "description"
	FieldCost          = "cost"
	FieldProjectNumber = "project_number"
	FieldProjectType   = "project_type"
	FieldAdDate        = "ad_date"
	FieldLetDate       = "let_date"
	FieldDistrict      = "district"
)

// Column roles recovered from table headers, in matching order.
const (
	RoleAdDate    = "ad_date"
	RoleLetDate   = "let_date"
	RoleCost      = "cost"
	RoleProjectID = "project_id"
	RoleWorkType  = "work_type"
	RoleScope     = "scope"
	RoleDetails   = "details"
	RoleAgency    = "agency"
	RoleDistrict  = "district"
	RoleLocation  = "location"
)

var columnRoleOrder = []string{
	RoleAdDate, RoleLetDate, RoleCost, RoleProjectID, RoleWorkType,
	RoleScope, RoleDetails, RoleAgency, RoleDistrict, RoleLocation,
}

// Strategy names accepted in the registry.
const (
	StrategyBlocks     = "blocks"
	StrategyPositional = "positional"
	StrategyValues     = "values"
	StrategyTable      = "table"
)

// LabelTable maps a field to the labels that introduce it in running text.
type LabelTable map[string][]string

// ColumnTable maps a column role to header substrings that identify it.
type ColumnTable map[string][]string

// DefaultLabels returns the stock field labels.
func DefaultLabels() LabelTable {
	return LabelTable{
		FieldLocation:      {"Location", "Project Location", "Town", "Municipality"},
		FieldDescription:   {"Description", "Project Description", "Scope of Work", "Scope"},
		FieldCost:          {"Project Value", "Estimated Cost", "Engineer's Estimate", "Cost Estimate", "Estimate", "Cost Range"},
		FieldProjectNumber: {"Project Number", "Project No.", "Project No", "Project #", "Contract Number", "Contract No.", "Contract No", "Proposal Number", "PIN"},
		FieldProjectType:   {"Project Type", "Work Type", "Type of Work"},
		FieldAdDate:        {"Advertise Date", "Advertising Date", "Advertisement Date", "Ad Date", "Bid Opening Date", "Bid Date"},
		FieldLetDate:       {"Let Date", "Letting Date"},
		FieldDistrict:      {"District", "Region"},
	}
}

// DefaultColumns returns the stock header substrings for table extraction.
func DefaultColumns() ColumnTable {
	return ColumnTable{
		RoleAdDate:    {"advertise", "ad date", "advertisement"},
		RoleLetDate:   {"let date", "letting", "bid open", "opening date"},
		RoleCost:      {"estimate", "cost", "project value", "amount", "budget"},
		RoleProjectID: {"project number", "project no", "project #", "project id", "contract number", "contract no", "contract id", "proposal"},
		RoleWorkType:  {"work type", "type of work", "project type", "work class", "category"},
		RoleScope:     {"scope", "description"},
		RoleDetails:   {"detail", "remark", "note", "comment"},
		RoleAgency:    {"agency", "administer", "sponsor", "owner"},
		RoleDistrict:  {"district", "region"},
		RoleLocation:  {"location", "title", "town", "municipality", "county", "city", "route"},
	}
}

// Merge returns a copy of t with the fields present in override replaced.
func (t LabelTable) Merge(override LabelTable) LabelTable {
	out := make(LabelTable, len(t))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range override {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Merge returns a copy of t with the roles present in override replaced.
func (t ColumnTable) Merge(override ColumnTable) ColumnTable {
	out := make(ColumnTable, len(t))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range override {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// FetchConfig defines HTTP fetching configuration for a jurisdiction.
type FetchConfig struct {
	TimeoutSeconds       int     `yaml:"timeout_seconds,omitempty" mapstructure:"timeout_seconds" validate:"omitempty,min=1"`
	MaxRetries           int     `yaml:"max_retries,omitempty" mapstructure:"max_retries" validate:"omitempty,min=0,max=10"`
	RateLimitRPS         float64 `yaml:"rate_limit_rps,omitempty" mapstructure:"rate_limit_rps" validate:"omitempty,gt=0"`
	UserAgent            string  `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
	AcceptLanguage       string  `yaml:"accept_language,omitempty" mapstructure:"accept_language"`
	ProxyURL             string  `yaml:"proxy_url,omitempty" mapstructure:"proxy_url" validate:"omitempty,url"`
	AllowPrivateNetworks bool    `yaml:"allow_private_networks,omitempty" mapstructure:"allow_private_networks"`
}

// withDefaults fills the zero fields of c from d.
func (c FetchConfig) withDefaults(d FetchConfig) FetchConfig {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = d.RateLimitRPS
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = d.AcceptLanguage
	}
	if c.ProxyURL == "" {
		c.ProxyURL = d.ProxyURL
	}
	c.AllowPrivateNetworks = c.AllowPrivateNetworks || d.AllowPrivateNetworks
	return c
}

// ExtractionConfig tunes the strategy ladder for one jurisdiction.
type ExtractionConfig struct {
	Strategies     []string    `yaml:"strategies,omitempty" validate:"omitempty,dive,oneof=blocks positional values table"`
	Anchor         string      `yaml:"anchor,omitempty"`
	Labels         LabelTable  `yaml:"labels,omitempty" validate:"omitempty,dive,keys,oneof=location description cost project_number project_type ad_date let_date district,endkeys"`
	Columns        ColumnTable `yaml:"columns,omitempty" validate:"omitempty,dive,keys,oneof=ad_date let_date cost project_id work_type scope details agency district location,endkeys"`
	DateLayout     string      `yaml:"date_layout,omitempty"`
	Sheet          string      `yaml:"sheet,omitempty"`
	HeaderScanRows int         `yaml:"header_scan_rows,omitempty" validate:"omitempty,min=1,max=50"`
	MaxRecords     int         `yaml:"max_records,omitempty" validate:"omitempty,min=30,max=50"`
	MinValue       int64       `yaml:"min_value,omitempty" validate:"omitempty,min=0"`
	MaxValue       int64       `yaml:"max_value,omitempty" validate:"omitempty,gtfield=MinValue"`
	DescriptionMax int         `yaml:"description_max,omitempty" validate:"omitempty,min=50,max=250"`
	ProjectTypeMax int         `yaml:"project_type_max,omitempty" validate:"omitempty,min=10,max=250"`
}

// DefaultExtraction returns the stock extraction tuning.
func DefaultExtraction() ExtractionConfig {
	return ExtractionConfig{
		Anchor:         "Location",
		Labels:         DefaultLabels(),
		Columns:        DefaultColumns(),
		DateLayout:     "1/2/2006",
		HeaderScanRows: 10,
		MaxRecords:     40,
		MinValue:       100_000,
		MaxValue:       500_000_000,
		DescriptionMax: 200,
		ProjectTypeMax: 100,
	}
}

// DefaultStrategies is the ladder used when a jurisdiction does not name one.
func DefaultStrategies(format Format) []string {
	switch format {
	case FormatHTMLTable:
		return []string{StrategyTable, StrategyBlocks, StrategyPositional, StrategyValues}
	case FormatXLSX, FormatCSV, FormatJSON:
		return []string{StrategyTable}
	default:
		return []string{StrategyBlocks, StrategyPositional, StrategyValues}
	}
}

func (c ExtractionConfig) withDefaults(d ExtractionConfig, format Format) ExtractionConfig {
	if len(c.Strategies) == 0 {
		c.Strategies = append([]string(nil), d.Strategies...)
	}
	if len(c.Strategies) == 0 {
		c.Strategies = DefaultStrategies(format)
	}
	if c.Anchor == "" {
		c.Anchor = d.Anchor
	}
	c.Labels = d.Labels.Merge(c.Labels)
	c.Columns = d.Columns.Merge(c.Columns)
	if c.DateLayout == "" {
		c.DateLayout = d.DateLayout
	}
	if c.Sheet == "" {
		c.Sheet = d.Sheet
	}
	if c.HeaderScanRows == 0 {
		c.HeaderScanRows = d.HeaderScanRows
	}
	if c.MaxRecords == 0 {
		c.MaxRecords = d.MaxRecords
	}
	if c.MinValue == 0 {
		c.MinValue = d.MinValue
	}
	if c.MaxValue == 0 {
		c.MaxValue = d.MaxValue
	}
	if c.DescriptionMax == 0 {
		c.DescriptionMax = d.DescriptionMax
	}
	if c.ProjectTypeMax == 0 {
		c.ProjectTypeMax = d.ProjectTypeMax
	}
	return c
}

// JurisdictionConfig defines a single transportation authority and how to read
// its bid schedule.
type JurisdictionConfig struct {
	Code       string           `yaml:"code" validate:"required,len=2,uppercase"`
	Name       string           `yaml:"name" validate:"required"`
	BidURL     string           `yaml:"bid_url" validate:"required,url"`
	PortalURL  string           `yaml:"portal_url" validate:"required,url"`
	Format     Format           `yaml:"format" validate:"required,oneof=html html_table pdf xlsx csv json"`
	UpdateFreq string           `yaml:"update_freq,omitempty"`
	Engine     string           `yaml:"engine,omitempty" validate:"omitempty,oneof=http colly"`
	Keywords   KeywordTable     `yaml:"keywords,omitempty" validate:"omitempty,dive,keys,oneof=highway hot_mix_asphalt aggregates ready_mix liquid_asphalt,endkeys"`
	Fetch      FetchConfig      `yaml:"fetch,omitempty"`
	Extraction ExtractionConfig `yaml:"extraction,omitempty"`
}

// Registry holds the configuration for all jurisdictions.
type Registry struct {
	Keywords      KeywordTable         `yaml:"keywords,omitempty" validate:"omitempty,dive,keys,oneof=highway hot_mix_asphalt aggregates ready_mix liquid_asphalt,endkeys"`
	Fetch         FetchConfig          `yaml:"fetch,omitempty"`
	Extraction    ExtractionConfig     `yaml:"extraction,omitempty"`
	Jurisdictions []JurisdictionConfig `yaml:"jurisdictions" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadRegistry reads a registry file, or the embedded jurisdictions.yaml when
// path is empty.
func LoadRegistry(path string) (*Registry, error) {
	data := jurisdictionsYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read registry %s: %w", path, err)
		}
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes, resolves defaults for and validates a registry.
// Environment variables in the YAML (e.g. ${CTDOT_FEATURE_URL}) are expanded first.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := validate.Struct(&reg); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}

	seen := make(map[string]bool, len(reg.Jurisdictions))
	fetchDefaults := reg.Fetch.withDefaults(DefaultFetchConfig())
	extractionDefaults := reg.Extraction.withDefaults(DefaultExtraction(), "")
	extractionDefaults.Strategies = reg.Extraction.Strategies
	keywords := DefaultKeywordTable().Merge(reg.Keywords)

	for i := range reg.Jurisdictions {
		j := &reg.Jurisdictions[i]
		if seen[j.Code] {
			return nil, fmt.Errorf("invalid registry: duplicate jurisdiction %s", j.Code)
		}
		seen[j.Code] = true

		j.Fetch = j.Fetch.withDefaults(fetchDefaults)
		j.Extraction = j.Extraction.withDefaults(extractionDefaults, j.Format)
		j.Keywords = keywords.Merge(j.Keywords)
		if j.Engine == "" {
			j.Engine = "http"
		}
		if j.Extraction.MinValue >= j.Extraction.MaxValue {
			return nil, fmt.Errorf("invalid registry: %s min_value must be below max_value", j.Code)
		}
	}
	return &reg, nil
}

// Codes returns jurisdiction codes in registry order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.Jurisdictions))
	for _, j := range r.Jurisdictions {
		codes = append(codes, j.Code)
	}
	return codes
}

func (r *Registry) Lookup(code string) (JurisdictionConfig, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, j := range r.Jurisdictions {
		if j.Code == code {
			return j, true
		}
	}
	return JurisdictionConfig{}, false
}

// Select resolves codes against the registry, keeping registry order.
// An empty selection means every jurisdiction.
func (r *Registry) Select(codes []string) ([]JurisdictionConfig, error) {
	if len(codes) == 0 {
		return append([]JurisdictionConfig(nil), r.Jurisdictions...), nil
	}
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := r.Lookup(c); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownJurisdiction, c)
		}
		wanted[c] = true
	}
	var out []JurisdictionConfig
	for _, j := range r.Jurisdictions {
		if wanted[j.Code] {
			out = append(out, j)
		}
	}
	return out, nil
}
