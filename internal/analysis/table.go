package analysis

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// ReadColumns parses a delimited numeric table. Fields may be separated by
// commas, semicolons or whitespace. Blank lines, lines starting with '#' and
// a non-numeric header line are skipped. Every data row must have at least
// minCols fields; the first minCols columns are returned.
func ReadColumns(r io.Reader, minCols int) ([][]float64, error) {
	cols := make([][]float64, minCols)
	scanner := bufio.NewScanner(r)
	line := 0
	rows := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.FieldsFunc(text, func(c rune) bool {
			return c == ',' || c == ';' || unicode.IsSpace(c)
		})
		if len(fields) < minCols {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", line, minCols, len(fields))
		}

		row := make([]float64, minCols)
		header := false
		for i := 0; i < minCols; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				if rows == 0 {
					header = true
					break
				}
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row[i] = v
		}
		if header {
			continue
		}

		for i, v := range row {
			cols[i] = append(cols[i], v)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("table has no data rows")
	}

	return cols, nil
}

// WriteColumns writes equal-length columns row by row joined by sep.
func WriteColumns(w io.Writer, sep string, header []string, cols ...[]float64) error {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	for _, c := range cols[1:] {
		if len(c) != n {
			return fmt.Errorf("column length mismatch: %d vs %d", len(c), n)
		}
	}

	bw := bufio.NewWriter(w)
	if len(header) > 0 {
		if _, err := bw.WriteString(strings.Join(header, sep) + "\n"); err != nil {
			return err
		}
	}

	row := make([]string, len(cols))
	for i := 0; i < n; i++ {
		for j, c := range cols {
			row[j] = strconv.FormatFloat(c[i], 'g', 17, 64)
		}
		if _, err := bw.WriteString(strings.Join(row, sep) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
