package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	rpdf "rsc.io/pdf"
)

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tbody": true, "thead": true, "tfoot": true, "tr": true, "ul": true,
}

// Decode turns fetched bytes into Content for the given format. A panic inside
// a third-party parser is reported as an error.
func Decode(format Format, body []byte, sheet string) (content Content, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			content = Content{}
			err = fmt.Errorf("%s decoder panic: %v", format, recovered)
		}
	}()

	switch format {
	case FormatHTML:
		return decodeHTML(body, false)
	case FormatHTMLTable:
		return decodeHTML(body, true)
	case FormatPDF:
		text, err := extractPDFText(body)
		if err != nil {
			return Content{}, err
		}
		return Content{Text: text}, nil
	case FormatXLSX:
		return decodeXLSX(body, sheet)
	case FormatCSV:
		return decodeCSV(body)
	case FormatJSON:
		return decodeFeatures(body)
	default:
		return Content{}, fmt.Errorf("unsupported format %q", format)
	}
}

func decodeHTML(body []byte, withTables bool) (Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Content{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeBlockText(&b, n)
	}
	content := Content{Text: tidyLines(b.String())}

	if withTables {
		doc.Find("table").Each(func(_ int, table *goquery.Selection) {
			table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
				var row Row
				tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
					row = append(row, normalizeSpace(cell.Text()))
				})
				if len(row) > 0 {
					content.Rows = append(content.Rows, row)
				}
			})
		})
	}
	return content, nil
}

// writeBlockText emits one line per block element; table cells are separated
// by a space so a label cell and its value cell stay on one line.
func writeBlockText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if blockElements[n.Data] {
			b.WriteByte('\n')
		}
		if n.Data == "td" || n.Data == "th" {
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeBlockText(b, c)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteByte('\n')
	}
}

// tidyLines collapses whitespace inside each line and drops blank lines.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = normalizeSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// extractPDFText reads page text, starting a new line whenever the baseline moves.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		var prev *rpdf.Text
		for _, fragment := range page.Content().Text {
			fragment := fragment
			switch {
			case prev == nil:
			case fragment.Y != prev.Y:
				builder.WriteString("\n")
			case fragment.X > prev.X+prev.W+fragment.FontSize*0.15:
				builder.WriteString(" ")
			}
			builder.WriteString(fragment.S)
			prev = &fragment
		}
		builder.WriteString("\n")
	}

	return tidyLines(builder.String()), nil
}

func decodeXLSX(body []byte, sheet string) (Content, error) {
	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return Content{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Content{}, fmt.Errorf("xlsx has no sheets")
		}
		sheet = sheets[0]
	}

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Content{}, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	rows := stringRows(raw)
	for r, row := range rows {
		for c, cell := range row {
			if n, ok := numericCell(f, sheet, c+1, r+1, cell.(string)); ok {
				row[c] = n
			}
		}
	}
	return rowsContent(rows), nil
}

// numericCell returns the value of a number-typed cell as a float64. Text
// cells stay strings even when they hold digits.
func numericCell(f *excelize.File, sheet string, col, row int, value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return 0, false
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil || (typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber) {
		return 0, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func decodeCSV(body []byte) (Content, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Content{}, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rowsContent(stringRows(rows)), nil
}

type featureCollection struct {
	Features []struct {
		Attributes map[string]interface{} `json:"attributes"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

// decodeFeatures flattens an ArcGIS feature set or GeoJSON collection into a
// header row followed by one row per feature. Header order is alphabetical.
func decodeFeatures(body []byte) (Content, error) {
	var records []map[string]interface{}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return Content{}, fmt.Errorf("decode json rows: %w", err)
		}
	} else {
		var fc featureCollection
		if err := json.Unmarshal(trimmed, &fc); err != nil {
			return Content{}, fmt.Errorf("decode feature set: %w", err)
		}
		for _, feat := range fc.Features {
			attrs := feat.Attributes
			if attrs == nil {
				attrs = feat.Properties
			}
			if attrs != nil {
				records = append(records, attrs)
			}
		}
	}
	if len(records) == 0 {
		return Content{}, nil
	}

	keySet := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			keySet[k] = true
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := make(Row, len(keys))
	for i, k := range keys {
		header[i] = k
	}
	rows := []Row{header}
	for _, rec := range records {
		row := make(Row, len(keys))
		for i, k := range keys {
			switch v := rec[k].(type) {
			case nil, string, float64:
				row[i] = v
			case bool:
				row[i] = strconv.FormatBool(v)
			default:
				row[i] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return rowsContent(rows), nil
}

func stringRows(raw [][]string) []Row {
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		row := make(Row, len(r))
		for i, cell := range r {
			row[i] = strings.TrimSpace(cell)
		}
		rows = append(rows, row)
	}
	return rows
}

// rowsContent keeps the rows and renders them as text so the text strategies
// can still run over tabular sources.
func rowsContent(rows []Row) Content {
	var b strings.Builder
	for _, row := range rows {
		var cells []string
		for _, cell := range row {
			if s := cellString(cell); s != "" {
				cells = append(cells, s)
			}
		}
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, " | "))
			b.WriteByte('\n')
		}
	}
	return Content{Text: strings.TrimSpace(b.String()), Rows: rows}
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
