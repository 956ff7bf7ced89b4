package ingest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		explicit, contentType string
		want                  Format
		ok                    bool
	}{
		{"", "text/csv; charset=utf-8", FormatCSV, true},
		{"", "text/tab-separated-values", FormatTSV, true},
		{"", "application/json", FormatJSON, true},
		{"", XLSXMediaType, FormatXLSX, true},
		{"", "text/plain", FormatText, true},
		{"TSV", "application/json", FormatTSV, true},
		{"pdf", "", "", false},
		{"", "image/png", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectFormat(tc.explicit, tc.contentType)
		assert.Equal(t, tc.ok, ok, "%q %q", tc.explicit, tc.contentType)
		assert.Equal(t, tc.want, got)
	}
}

func TestParse_CSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfDate,Time,Field,Address,Age,Center Pay,AR Pay\n" +
		"2026-11-07,09:00,Field 3,1 Park Rd,U12,$65,45\n" +
		",,,,,,\n" +
		"11/08/2026,2:30 PM,Field 1,,U14,70,\n")
	records, text, err := Parse(FormatCSV, data)
	require.NoError(t, err)
	assert.Empty(t, text)
	require.Len(t, records, 2)
	assert.Equal(t, "Field 3", records[0]["field"])

	rows, warnings := Normalize(records)
	assert.Empty(t, warnings)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2026, 11, 7, 9, 0, 0, 0, time.UTC), rows[0].ScheduledStart)
	assert.Equal(t, "Field 3", rows[0].FieldName)
	assert.Equal(t, "1 Park Rd", rows[0].Address)
	assert.Equal(t, "U12", rows[0].AgeGroup)
	assert.Equal(t, 65.0, rows[0].CenterFee)
	assert.Equal(t, 45.0, rows[0].ARFee)

	assert.Equal(t, time.Date(2026, 11, 8, 14, 30, 0, 0, time.UTC), rows[1].ScheduledStart)
	assert.Zero(t, rows[1].ARFee)
	assert.Equal(t, 1, rows[1].Index)
}

func TestParse_TSV(t *testing.T) {
	records, _, err := Parse(FormatTSV, []byte("scheduled_start\tlocation\n2026-11-07T09:00:00Z\tRiverside\n"))
	require.NoError(t, err)
	rows, _ := Normalize(records)
	require.Len(t, rows, 1)
	assert.Equal(t, "Riverside", rows[0].FieldName)
}

func TestParse_JSONShapes(t *testing.T) {
	for name, body := range map[string]string{
		"array":  `[{"scheduled_start":"2026-11-07 09:00","field_name":"A","latitude":39.78,"longitude":-89.65}, 7]`,
		"rows":   `{"rows":[{"scheduled_start":"2026-11-07 09:00","field_name":"A","latitude":39.78,"longitude":-89.65}, "x"]}`,
		"object": `{"scheduled_start":"2026-11-07 09:00","field_name":"A","latitude":39.78,"longitude":-89.65}`,
	} {
		t.Run(name, func(t *testing.T) {
			records, _, err := Parse(FormatJSON, []byte(body))
			require.NoError(t, err)
			rows, warnings := Normalize(records)
			require.Len(t, rows, 1)
			require.NotNil(t, rows[0].Latitude)
			assert.InDelta(t, 39.78, *rows[0].Latitude, 1e-9)
			if name != "object" {
				require.Len(t, warnings, 1)
				assert.Equal(t, 1, *warnings[0].Row)
				assert.Equal(t, "row is not an object", warnings[0].Message)
			}
		})
	}

	_, _, err := Parse(FormatJSON, []byte(`{nope`))
	assert.Error(t, err)
}

func TestParse_Workbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Kickoff_Time", "Pitch", "Division"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"2026-11-07 10:15", "North 2", "U10"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	records, _, err := Parse(FormatXLSX, buf.Bytes())
	require.NoError(t, err)
	rows, warnings := Normalize(records)
	assert.Empty(t, warnings)
	require.Len(t, rows, 1)
	assert.Equal(t, "North 2", rows[0].FieldName)
	assert.Equal(t, "U10", rows[0].AgeGroup)
	assert.Equal(t, 10, rows[0].ScheduledStart.Hour())
}

func TestParse_TextAndLimits(t *testing.T) {
	records, text, err := Parse(FormatText, []byte("Sat 9am U12 at Riverside"))
	require.NoError(t, err)
	assert.Nil(t, records)
	assert.Equal(t, "Sat 9am U12 at Riverside", text)

	var b bytes.Buffer
	b.WriteString("date,field\n")
	for i := 0; i <= MaxRows; i++ {
		b.WriteString("2026-11-07,A\n")
	}
	_, _, err = Parse(FormatCSV, b.Bytes())
	assert.ErrorContains(t, err, "limit")
}

func TestNormalize_Warnings(t *testing.T) {
	rows, warnings := Normalize([]Record{
		{"date": "someday", "field": "A"},
		{"date": "2026-11-07", "lat": "39.7"},
		{"date": "2026-11-07", "center_fee": "lots"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, DefaultFieldName, rows[0].FieldName)
	assert.Nil(t, rows[0].Latitude)
	assert.Zero(t, rows[1].CenterFee)

	require.Len(t, warnings, 3)
	assert.Equal(t, 0, *warnings[0].Row)
	assert.Contains(t, warnings[0].Message, "scheduled start")
	assert.Contains(t, warnings[1].Message, "coordinate")
	assert.Contains(t, warnings[2].Message, "center fee")
}

func TestNeedsExtraction(t *testing.T) {
	assert.True(t, NeedsExtraction(nil))
	assert.False(t, NeedsExtraction([]Record{{"date": "2026-11-07"}, {"date": "2026-11-08"}}))
	assert.True(t, NeedsExtraction([]Record{{"date": "2026-11-07"}, {"notes": "tbd"}}))
	assert.True(t, NeedsExtraction([]Record{{"notes": "Saturday 9am"}}))
}

func TestParseStart(t *testing.T) {
	got, ok := ParseStart("2026-11-07T09:00:00-05:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 11, 7, 14, 0, 0, 0, time.UTC), got)

	_, ok = ParseStart("  ")
	assert.False(t, ok)
}
