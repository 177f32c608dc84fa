package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var orderNumberColumns = []string{"order_number", "Name", "order_name", "Order", "Pedido"}

// table is a CSV file held in memory with its header order preserved.
type table struct {
	header []string
	rows   []map[string]string
}

func (t *table) has(column string) bool {
	for _, h := range t.header {
		if h == column {
			return true
		}
	}
	return false
}

func (t *table) records() [][]string {
	out := make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		rec := make([]string, len(t.header))
		for i, h := range t.header {
			rec[i] = row[h]
		}
		out = append(out, rec)
	}
	return out
}

// sniffDelimiter picks the separator that occurs most in the first line.
func sniffDelimiter(path string) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return ',', nil
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best, nil
}

func readTable(path string, comma rune) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return &table{}, nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &table{header: header}
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func writeTable(path string, t *table) error {
	return writeCSV(path, t.header, t.records())
}

// ReadOrderNumbers reads short order numbers from an export file. It uses
// the first known order column present, strips "#" and keeps only values
// that are all digits.
func ReadOrderNumbers(path string) ([]string, string, error) {
	comma, err := sniffDelimiter(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	t, err := readTable(path, comma)
	if err != nil {
		return nil, "", err
	}

	column := ""
	for _, c := range orderNumberColumns {
		if t.has(c) {
			column = c
			break
		}
	}
	if column == "" {
		return nil, "", fmt.Errorf("no order number column in %s (have %v, want one of %v)", path, t.header, orderNumberColumns)
	}

	var numbers []string
	for _, row := range t.rows {
		n := strings.TrimSpace(strings.ReplaceAll(row[column], "#", ""))
		if isDigits(n) {
			numbers = append(numbers, n)
		}
	}
	return numbers, column, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ReadTrackingValue returns guia_aerea from the first row.
func ReadTrackingValue(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s not found", ErrNoTrackingValue, path)
	}
	t, err := readTable(path, ',')
	if err != nil {
		return "", err
	}
	if len(t.rows) == 0 {
		return "", fmt.Errorf("%w: %s has no rows", ErrNoTrackingValue, path)
	}
	v := strings.TrimSpace(t.rows[0]["guia_aerea"])
	if v == "" {
		return "", fmt.Errorf("%w: guia_aerea is empty in %s", ErrNoTrackingValue, path)
	}
	return v, nil
}

// FindOrderFiles lists the exported files for an order, oldest first.
func FindOrderFiles(dir, number string) ([]string, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(number, "#", ""))
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("order_%s_*.csv", clean)))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// UpdateTracking sets guia_aerea on the given zero-based rows, or on every
// row when rows is empty. Out-of-range indices are skipped. It returns how
// many rows changed.
func UpdateTracking(path, value string, rows []int) (int, error) {
	t, err := readTable(path, ',')
	if err != nil {
		return 0, err
	}
	if len(t.rows) == 0 {
		return 0, fmt.Errorf("%s has no rows", path)
	}
	if !t.has("guia_aerea") {
		return 0, fmt.Errorf("%s has no guia_aerea column", path)
	}

	updated := 0
	if len(rows) == 0 {
		for _, row := range t.rows {
			row["guia_aerea"] = value
			updated++
		}
	} else {
		for _, i := range rows {
			if i >= 0 && i < len(t.rows) {
				t.rows[i]["guia_aerea"] = value
				updated++
			}
		}
	}

	if err := writeTable(path, t); err != nil {
		return 0, err
	}
	return updated, nil
}

// ParseRowList parses "1,3" into zero-based indices.
func ParseRowList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid row number %q", part)
		}
		out = append(out, n-1)
	}
	return out, nil
}

// ValidateStructure compares the header against the export columns.
func ValidateStructure(path string) (missing, extra []string, err error) {
	t, err := readTable(path, ',')
	if err != nil {
		return nil, nil, err
	}
	want := make(map[string]bool, len(csvHeader))
	for _, h := range csvHeader {
		want[h] = true
		if !t.has(h) {
			missing = append(missing, h)
		}
	}
	for _, h := range t.header {
		if !want[h] {
			extra = append(extra, h)
		}
	}
	return missing, extra, nil
}

type FileAnalysis struct {
	File            string
	OrderNumber     string
	ShippingName    string
	ShippingCountry string
	Total           int
	WithFDA         int
	WithoutFDA      int
	Rows            []map[string]string
}

func (a FileAnalysis) FDAPercentage() string {
	if a.Total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(a.WithFDA)/float64(a.Total)*100)
}

func AnalyzeFile(path string) (*FileAnalysis, error) {
	t, err := readTable(path, ',')
	if err != nil {
		return nil, err
	}
	a := &FileAnalysis{File: filepath.Base(path), Total: len(t.rows), Rows: t.rows}
	if len(t.rows) == 0 {
		return a, nil
	}
	first := t.rows[0]
	a.OrderNumber = first["order_number"]
	a.ShippingName = first["shipping_name"]
	a.ShippingCountry = first["shipping_country"]
	for _, row := range t.rows {
		if strings.TrimSpace(row["fda_id"]) != "" {
			a.WithFDA++
		} else {
			a.WithoutFDA++
		}
	}
	return a, nil
}

// FilterByFDA writes the rows with (or without) an FDA id next to the input
// file. It returns "" when no row qualifies.
func FilterByFDA(path string, hasFDA bool) (string, int, error) {
	t, err := readTable(path, ',')
	if err != nil {
		return "", 0, err
	}

	filtered := &table{header: t.header}
	for _, row := range t.rows {
		if (strings.TrimSpace(row["fda_id"]) != "") == hasFDA {
			filtered.rows = append(filtered.rows, row)
		}
	}
	if len(filtered.rows) == 0 {
		return "", 0, nil
	}

	suffix := "_without_fda"
	if hasFDA {
		suffix = "_with_fda"
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + "_filtered" + suffix + ".csv"
	if err := writeTable(out, filtered); err != nil {
		return "", 0, err
	}
	return out, len(filtered.rows), nil
}

var summaryHeader = []string{
	"file",
	"order_number",
	"shipping_name",
	"shipping_country",
	"total_products",
	"products_with_fda",
	"products_without_fda",
	"fda_percentage",
}

// WriteSummaryReport aggregates every order_*.csv in dir into
// summary_report_{timestamp}.csv.
func WriteSummaryReport(dir string, at time.Time) (string, []FileAnalysis, error) {
	files, err := filepath.Glob(filepath.Join(dir, "order_*.csv"))
	if err != nil {
		return "", nil, err
	}
	if len(files) == 0 {
		return "", nil, fmt.Errorf("no order_*.csv files in %s", dir)
	}
	sort.Strings(files)

	var analyses []FileAnalysis
	records := make([][]string, 0, len(files))
	for _, f := range files {
		a, err := AnalyzeFile(f)
		if err != nil {
			return "", nil, err
		}
		analyses = append(analyses, *a)
		records = append(records, []string{
			a.File,
			a.OrderNumber,
			a.ShippingName,
			a.ShippingCountry,
			strconv.Itoa(a.Total),
			strconv.Itoa(a.WithFDA),
			strconv.Itoa(a.WithoutFDA),
			a.FDAPercentage(),
		})
	}

	path := filepath.Join(dir, fmt.Sprintf("summary_report_%s.csv", at.Format("20060102_150405")))
	if err := writeCSV(path, summaryHeader, records); err != nil {
		return "", nil, err
	}
	return path, analyses, nil
}

// WriteProductMapping writes one row per variant for manual FDA code entry.
func WriteProductMapping(path string, products []Product) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	var records [][]string
	for _, p := range products {
		for _, v := range p.Variants {
			records = append(records, []string{
				strconv.FormatInt(p.ID, 10),
				strconv.FormatInt(v.ID, 10),
				v.SKU,
				p.Title,
				"",
				"",
			})
		}
	}
	header := []string{"product_id", "variant_id", "sku", "title", "fda_code", "fabricante_code"}
	if err := writeCSV(path, header, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
