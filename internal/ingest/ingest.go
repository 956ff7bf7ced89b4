// Package ingest turns league schedule exports (CSV, TSV, JSON, XLSX or free
// text) into normalized game rows.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// MaxRows caps how many rows one upload may contain.
const MaxRows = 500

// MaxExtractChars caps the text handed to an Extractor.
const MaxExtractChars = 12000

// DefaultFieldName is used when a row names neither a field nor a location.
const DefaultFieldName = "Unknown Field"

// ErrExtractorDisabled is returned when free text arrives and no model is configured.
var ErrExtractorDisabled = errors.New("ai schedule extraction is not configured")

// Format is the encoding of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatText Format = "text"
)

// XLSXMediaType is the content type of an Excel workbook.
const XLSXMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var mediaTypes = map[string]Format{
	"text/csv":                  FormatCSV,
	"application/csv":           FormatCSV,
	"text/tab-separated-values": FormatTSV,
	"application/json":          FormatJSON,
	XLSXMediaType:               FormatXLSX,
	"text/plain":                FormatText,
}

// DetectFormat picks the format from an explicit name, falling back to the
// request content type.
func DetectFormat(explicit, contentType string) (Format, bool) {
	if explicit != "" {
		switch f := Format(strings.ToLower(strings.TrimSpace(explicit))); f {
		case FormatCSV, FormatTSV, FormatJSON, FormatXLSX, FormatText:
			return f, true
		}
		return "", false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	f, ok := mediaTypes[mt]
	return f, ok
}

// Record is one raw row keyed by lower-cased column name. A nil Record marks
// a JSON element that was not an object.
type Record map[string]string

// Warning describes a row that was skipped or adjusted. Row is nil for
// upload-wide warnings.
type Warning struct {
	Row     *int   `json:"row_index"`
	Message string `json:"message"`
}

func rowWarning(i int, format string, args ...interface{}) Warning {
	return Warning{Row: &i, Message: fmt.Sprintf(format, args...)}
}

// Extractor pulls schedule rows out of unstructured text.
type Extractor interface {
	ExtractGames(ctx context.Context, text string) ([]Record, error)
}

// Parse decodes an upload. Structured formats return records; FormatText
// returns the text for extraction.
func Parse(format Format, data []byte) ([]Record, string, error) {
	var (
		records []Record
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = parseDelimited(data, ',')
	case FormatTSV:
		records, err = parseDelimited(data, '\t')
	case FormatJSON:
		records, err = parseJSON(data)
	case FormatXLSX:
		records, err = parseWorkbook(data)
	case FormatText:
		return nil, string(data), nil
	default:
		return nil, "", fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, "", err
	}
	if len(records) > MaxRows {
		return nil, "", fmt.Errorf("upload has %d rows, limit is %d", len(records), MaxRows)
	}
	return records, "", nil
}

func parseDelimited(data []byte, comma rune) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read delimited rows: %w", err)
	}
	return fromTable(rows), nil
}

func parseWorkbook(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromTable(rows), nil
}

// fromTable keys each row by the header row, dropping blank rows.
func fromTable(rows [][]string) []Record {
	if len(rows) == 0 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	out := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := Record{}
		blank := true
		for i, v := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			v = strings.TrimSpace(v)
			if v != "" {
				blank = false
			}
			rec[header[i]] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

func parseJSON(data []byte) ([]Record, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return RecordsFromJSON(doc), nil
}

// RecordsFromJSON accepts an array of objects, an object with a "rows"
// array, or a single object.
func RecordsFromJSON(doc interface{}) []Record {
	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		if rows, ok := v["rows"].([]interface{}); ok {
			items = rows
		} else {
			items = []interface{}{v}
		}
	default:
		return nil
	}

	out := make([]Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, nil)
			continue
		}
		rec := make(Record, len(obj))
		for k, val := range obj {
			rec[strings.ToLower(strings.TrimSpace(k))] = scalarString(val)
		}
		out = append(out, rec)
	}
	return out
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Row is a normalized game row ready to be created.
type Row struct {
	Index            int
	ScheduledStart   time.Time
	FieldName        string
	Address          string
	Latitude         *float64
	Longitude        *float64
	AgeGroup         string
	CompetitionLevel string
	CenterFee        float64
	ARFee            float64
}

var (
	dateKeys     = []string{"date", "game_date", "scheduled_date"}
	timeKeys     = []string{"time", "start_time", "kickoff", "scheduled_time"}
	datetimeKeys = []string{"datetime", "scheduled_start", "start", "kickoff_time", "date_time"}
	fieldKeys    = []string{"field", "field_name", "field_number", "pitch"}
	locationKeys = []string{"location", "location_name", "facility", "site"}
	addressKeys  = []string{"address", "location_address", "site_address"}
	latKeys      = []string{"lat", "latitude"}
	lonKeys      = []string{"lon", "lng", "longitude"}
	ageKeys      = []string{"age_group", "age", "division"}
	levelKeys    = []string{"competition_level", "level", "league"}
	centerKeys   = []string{"center_fee", "center pay", "center_fee_usd"}
	arKeys       = []string{"ar_fee", "assistant_fee", "ar pay"}
)

func first(rec Record, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(rec[k]); v != "" {
			return v
		}
	}
	return ""
}

func startText(rec Record) string {
	if v := first(rec, datetimeKeys); v != "" {
		return v
	}
	d := first(rec, dateKeys)
	if d == "" {
		return ""
	}
	if t := first(rec, timeKeys); t != "" {
		return d + " " + t
	}
	return d
}

// NeedsExtraction reports whether structured records are too sparse to use
// directly: none at all, or at least half missing a start time.
func NeedsExtraction(records []Record) bool {
	if len(records) == 0 {
		return true
	}
	missing := 0
	for _, rec := range records {
		if rec == nil || startText(rec) == "" {
			missing++
		}
	}
	threshold := len(records) / 2
	if threshold < 1 {
		threshold = 1
	}
	return missing >= threshold
}

// RecordsText renders records for an Extractor.
func RecordsText(records []Record) string {
	b, _ := json.Marshal(records)
	return string(b)
}

// Normalize maps raw records onto Rows. Rows without a usable start time are
// skipped with a warning.
func Normalize(records []Record) ([]Row, []Warning) {
	var (
		rows     []Row
		warnings []Warning
	)
	for i, rec := range records {
		if rec == nil {
			warnings = append(warnings, rowWarning(i, "row is not an object"))
			continue
		}
		start, ok := ParseStart(startText(rec))
		if !ok {
			warnings = append(warnings, rowWarning(i, "missing or invalid scheduled start"))
			continue
		}

		row := Row{
			Index:            i,
			ScheduledStart:   start,
			FieldName:        first(rec, fieldKeys),
			Address:          first(rec, addressKeys),
			AgeGroup:         first(rec, ageKeys),
			CompetitionLevel: first(rec, levelKeys),
		}
		if row.FieldName == "" {
			row.FieldName = first(rec, locationKeys)
		}
		if row.FieldName == "" {
			row.FieldName = DefaultFieldName
		}

		row.Latitude = parseNumber(first(rec, latKeys))
		row.Longitude = parseNumber(first(rec, lonKeys))
		if (row.Latitude == nil) != (row.Longitude == nil) {
			warnings = append(warnings, rowWarning(i, "only one coordinate given; coordinates ignored"))
			row.Latitude, row.Longitude = nil, nil
		}

		for _, fee := range []struct {
			keys []string
			dst  *float64
			name string
		}{{centerKeys, &row.CenterFee, "center fee"}, {arKeys, &row.ARFee, "ar fee"}} {
			raw := first(rec, fee.keys)
			if raw == "" {
				continue
			}
			v := parseNumber(raw)
			if v == nil || *v < 0 {
				warnings = append(warnings, rowWarning(i, "invalid %s %q ignored", fee.name, raw))
				continue
			}
			*fee.dst = *v
		}
		rows = append(rows, row)
	}
	return rows, warnings
}

var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006 3:04 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006 15:04",
	"01-02-2006",
}

// ParseStart reads a kickoff time. Values without a zone are taken as UTC.
func ParseStart(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
