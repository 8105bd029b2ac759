package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// WriteCSV writes a header of "date" plus the columns, one row per date.
// NaN is written as an empty cell.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"date"}, f.order...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, d := range f.dates {
		record[0] = d.Format(DateLayout)
		for j, name := range f.order {
			v := f.cols[name][i]
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the format written by WriteCSV. The first column must be
// "date"; empty cells and "nan" read as NaN.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err == io.EOF {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) == 0 || header[0] != "date" {
		return nil, fmt.Errorf("first column must be date, got %v", header)
	}
	names := append([]string(nil), header[1:]...)

	var dates []time.Time
	values := make([][]float64, len(names))
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d, err := time.Parse(DateLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[0])
		}
		dates = append(dates, d)
		for j := range names {
			cell := rec[j+1]
			v := math.NaN()
			if cell != "" && cell != "nan" && cell != "NaN" {
				v, err = strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d column %s: %w", line, names[j], err)
				}
			}
			values[j] = append(values[j], v)
		}
	}

	f := New(dates)
	for j, name := range names {
		if values[j] == nil {
			values[j] = []float64{}
		}
		if err := f.Set(name, values[j]); err != nil {
			return nil, err
		}
	}
	return f, nil
}
