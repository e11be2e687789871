package ingest

// PositionalStrategy collects every labeled value document-wide and zips the
// fields by index, one project per priced cost occurrence. Misalignment when a
// source skips a label is accepted.
type PositionalStrategy struct{}

func (PositionalStrategy) Name() string { return StrategyPositional }

func (PositionalStrategy) Extract(content Content, j JurisdictionConfig) []RawProject {
	if content.Text == "" {
		return nil
	}
	columns := make(map[string][]string)
	for _, lv := range newLabelScanner(j.Extraction.Labels).scan(content.Text) {
		columns[lv.field] = append(columns[lv.field], lv.value)
	}

	at := func(field string, i int) string {
		if i < len(columns[field]) {
			return columns[field][i]
		}
		return ""
	}

	var projects []RawProject
	for i, cost := range columns[FieldCost] {
		if !priced(cost) {
			continue
		}
		fields := map[string]string{FieldCost: cost}
		for _, field := range []string{FieldLocation, FieldDescription, FieldProjectNumber, FieldProjectType, FieldAdDate, FieldLetDate, FieldDistrict} {
			fields[field] = at(field, i)
		}
		projects = append(projects, rawFromFields(fields))
	}
	return projects
}
