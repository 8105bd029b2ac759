package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
)

var labelHeaders = map[string]string{
	"date":                "date",
	"fecha":               "date",
	"approval":            "approval",
	"aprobacion_boric":    "approval",
	"disapproval":         "disapproval",
	"desaprobacion_boric": "disapproval",
}

// ParseLabels reads survey publications from CSV with columns date,
// approval and disapproval (the Spanish column names are accepted too).
// Values above 1 are read as percentages.
func ParseLabels(r io.Reader) ([]db.Label, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading label header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		if canon, ok := labelHeaders[strings.ToLower(strings.TrimSpace(h))]; ok {
			idx[canon] = i
		}
	}
	for _, col := range []string{"date", "approval", "disapproval"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("label file has no %s column", col)
		}
	}

	var labels []db.Label
	seen := map[time.Time]bool{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d, err := time.Parse("2006-01-02", strings.TrimSpace(row[idx["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if seen[d] {
			return nil, fmt.Errorf("line %d: duplicate report date %s", line, d.Format("2006-01-02"))
		}
		seen[d] = true
		a, err := parseShare(row[idx["approval"]])
		if err != nil {
			return nil, fmt.Errorf("line %d approval: %w", line, err)
		}
		dis, err := parseShare(row[idx["disapproval"]])
		if err != nil {
			return nil, fmt.Errorf("line %d disapproval: %w", line, err)
		}
		labels = append(labels, db.Label{ReportDate: d, Approval: a, Disapproval: dis})
	}
	return labels, nil
}

func parseShare(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, err
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("value %v out of range", v)
	}
	return v, nil
}
