// Package textio reads and writes whitespace-separated numeric matrices in
// the AFNI .1D layout: one row per timepoint, one column per voxel. Lines
// starting with '#' are comments.
package textio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Errors returned by the readers.
var (
	ErrEmpty        = errors.New("textio: no numeric rows")
	ErrRaggedMatrix = errors.New("textio: rows have different column counts")
	ErrNotAColumn   = errors.New("textio: expected a single column or row")
)

// ReadMatrix parses r into rows of float64.
func ReadMatrix(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(c rune) bool {
			return c == ' ' || c == '\t' || c == ','
		})
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("textio: line %d column %d: %w", line, i+1, err)
			}
			row[i] = v
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, fmt.Errorf("%w: line %d has %d values, want %d", ErrRaggedMatrix, line, len(row), len(rows[0]))
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("textio: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

// ReadMatrixFile reads a matrix from path.
func ReadMatrixFile(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("textio: %w", err)
	}
	defer f.Close()
	return ReadMatrix(f)
}

// ReadVectorFile reads a single column (or a single row) from path.
func ReadVectorFile(path string) ([]float64, error) {
	rows, err := ReadMatrixFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case len(rows[0]) == 1:
		out := make([]float64, len(rows))
		for i, r := range rows {
			out[i] = r[0]
		}
		return out, nil
	case len(rows) == 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrNotAColumn, path, len(rows), len(rows[0]))
	}
}

// Columns transposes row-major timepoint rows into one slice per voxel.
func Columns(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	cols := make([][]float64, len(rows[0]))
	for j := range cols {
		cols[j] = make([]float64, len(rows))
		for i := range rows {
			cols[j][i] = rows[i][j]
		}
	}
	return cols
}

// WriteColumns writes one column per voxel, one row per sample.
func WriteColumns(w io.Writer, cols [][]float64) error {
	bw := bufio.NewWriter(w)
	n := 0
	for _, c := range cols {
		n = max(n, len(c))
	}
	for i := range n {
		for j, c := range cols {
			if j > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			v := 0.0
			if i < len(c) {
				v = c[i]
			}
			if _, err := bw.WriteString(strconv.FormatFloat(v, 'g', 10, 64)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteColumnsFile writes cols to path.
func WriteColumnsFile(path string, cols [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("textio: %w", err)
	}
	if err := WriteColumns(f, cols); err != nil {
		f.Close()
		return fmt.Errorf("textio: %w", err)
	}
	return f.Close()
}
