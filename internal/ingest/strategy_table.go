package ingest

import (
	"strings"
)

// TableStrategy maps header cells to column roles by case-insensitive
// substring and reads one project per data row. Rows without a location are skipped.
type TableStrategy struct{}

func (TableStrategy) Name() string { return StrategyTable }

func (TableStrategy) Extract(content Content, j JurisdictionConfig) []RawProject {
	header, cols := detectHeader(content.Rows, j.Extraction.Columns, j.Extraction.HeaderScanRows)
	if header < 0 {
		return nil
	}

	var projects []RawProject
	for _, row := range content.Rows[header+1:] {
		location := cellText(row, cols, RoleLocation)
		if location == "" {
			continue
		}
		description := cellText(row, cols, RoleScope)
		if details := cellText(row, cols, RoleDetails); details != "" {
			if description == "" {
				description = details
			} else {
				description += " - " + details
			}
		}
		projects = append(projects, RawProject{
			ProjectNumber: cellText(row, cols, RoleProjectID),
			Description:   description,
			Location:      location,
			District:      cellText(row, cols, RoleDistrict),
			ProjectType:   cellText(row, cols, RoleWorkType),
			Agency:        cellText(row, cols, RoleAgency),
			Cost:          cellValue(row, cols, RoleCost),
			AdDate:        cellValue(row, cols, RoleAdDate),
			LetDate:       cellValue(row, cols, RoleLetDate),
		})
	}
	return projects
}

// detectHeader picks, among the first scanRows rows, the one matching the most
// roles. A header needs a location column and at least one other role.
func detectHeader(rows []Row, table ColumnTable, scanRows int) (int, map[string]int) {
	if scanRows <= 0 {
		scanRows = 10
	}
	best, bestCols := -1, map[string]int(nil)
	for i := 0; i < len(rows) && i < scanRows; i++ {
		cols := matchColumns(rows[i], table)
		if _, ok := cols[RoleLocation]; !ok || len(cols) < 2 {
			continue
		}
		if len(cols) > len(bestCols) {
			best, bestCols = i, cols
		}
	}
	return best, bestCols
}

// matchColumns assigns each header cell to the first role (in role order)
// whose substrings it contains. Each role keeps its leftmost column.
func matchColumns(row Row, table ColumnTable) map[string]int {
	cols := make(map[string]int)
	for ci, cell := range row {
		h := strings.ToLower(normalizeSpace(cellString(cell)))
		if h == "" {
			continue
		}
		for _, role := range columnRoleOrder {
			if _, taken := cols[role]; taken {
				continue
			}
			if containsAny(h, table[role]) {
				cols[role] = ci
				break
			}
		}
	}
	return cols
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub = strings.ToLower(strings.TrimSpace(sub)); sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func cellValue(row Row, cols map[string]int, role string) interface{} {
	i, ok := cols[role]
	if !ok || i >= len(row) {
		return nil
	}
	if s, isString := row[i].(string); isString && strings.TrimSpace(s) == "" {
		return nil
	}
	return row[i]
}

func cellText(row Row, cols map[string]int, role string) string {
	return cellString(cellValue(row, cols, role))
}
