// Package record writes trial data as CSV: a full export and a per-trial
// append log.
package record

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AuditoryMemoryTest/pkg/models"
)

// Columns is the fixed export schema.
var Columns = []string{
	"timestamp", "subject_id", "session", "block", "trial_num", "load", "snr",
	"digits", "probe", "is_match", "response", "is_correct", "rt",
}

// FormatDigits renders a sequence as "[3, 7, 1]".
func FormatDigits(digits []int) string {
	parts := make([]string, len(digits))
	for i, d := range digits {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Row renders a trial in column order. Unanswered fields are empty.
func Row(t models.Trial) []string {
	row := []string{
		t.Timestamp.Format(models.TimestampLayout),
		t.SubjectID,
		strconv.Itoa(t.Session),
		string(t.Block),
		strconv.Itoa(t.TrialNum),
		strconv.Itoa(t.Load),
		strconv.Itoa(t.SNR),
		FormatDigits(t.Digits),
		strconv.Itoa(t.Probe),
		formatBool(t.IsMatch),
		"", "", "",
	}
	if t.Response != nil {
		row[10] = *t.Response
	}
	if t.IsCorrect != nil {
		row[11] = formatBool(*t.IsCorrect)
	}
	if t.RT != nil {
		row[12] = strconv.FormatFloat(*t.RT, 'f', -1, 64)
	}
	return row
}

func writeRows(w io.Writer, header bool, trials []models.Trial) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(Columns); err != nil {
			return err
		}
	}
	for _, t := range trials {
		if err := cw.Write(Row(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV renders trials as a table with a header row. An empty slice
// yields the header alone.
func ExportCSV(trials []models.Trial) string {
	var buf bytes.Buffer
	// writes to a bytes.Buffer cannot fail
	_ = writeRows(&buf, true, trials)
	return buf.String()
}

// ParseCSV reads a table produced by ExportCSV or an append log.
func ParseCSV(r io.Reader) ([]models.Trial, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	for i, c := range Columns {
		if records[0][i] != c {
			return nil, fmt.Errorf("unexpected column %q at %d, want %q", records[0][i], i, c)
		}
	}

	out := make([]models.Trial, 0, len(records)-1)
	for n, rec := range records[1:] {
		t, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseRow(rec []string) (models.Trial, error) {
	var t models.Trial
	var err error

	if t.Timestamp, err = time.ParseInLocation(models.TimestampLayout, rec[0], time.Local); err != nil {
		return t, fmt.Errorf("timestamp: %w", err)
	}
	t.SubjectID = rec[1]
	t.Block = models.Block(rec[3])

	ints := []struct {
		dst  *int
		col  int
		name string
	}{
		{&t.Session, 2, "session"},
		{&t.TrialNum, 4, "trial_num"},
		{&t.Load, 5, "load"},
		{&t.SNR, 6, "snr"},
		{&t.Probe, 8, "probe"},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(rec[f.col]); err != nil {
			return t, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	if t.Digits, err = parseDigits(rec[7]); err != nil {
		return t, err
	}
	if t.IsMatch, err = parseBool(rec[9]); err != nil {
		return t, fmt.Errorf("is_match: %w", err)
	}
	if rec[10] != "" {
		resp := rec[10]
		t.Response = &resp
	}
	if rec[11] != "" {
		ok, err := parseBool(rec[11])
		if err != nil {
			return t, fmt.Errorf("is_correct: %w", err)
		}
		t.IsCorrect = &ok
	}
	if rec[12] != "" {
		rt, err := strconv.ParseFloat(rec[12], 64)
		if err != nil {
			return t, fmt.Errorf("rt: %w", err)
		}
		t.RT = &rt
	}
	return t, nil
}

func parseDigits(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("digits: malformed %q", s)
	}
	s = strings.TrimSpace(s[1 : len(s)-1])
	if s == "" {
		return []int{}, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("digits: %w", err)
		}
		out[i] = d
	}
	return out, nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "True", "true", "1":
		return true, nil
	case "False", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
