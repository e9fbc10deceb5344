package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rushteam/potok/core"
)

// ReadCSV 读取带表头的 CSV。indexCol 为行索引列（为空时使用行号），
// 其余列必须是数值，空值解析为 NaN。
func ReadCSV(r io.Reader, indexCol string, targets ...string) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idxPos := -1
	if indexCol != "" {
		idxPos = slices.Index(header, indexCol)
		if idxPos < 0 {
			return nil, core.InvalidInputf(core.ModuleData, "tabular: index column %q not in header", indexCol)
		}
	}
	columns := make([]string, 0, len(header))
	for j, h := range header {
		if j != idxPos {
			columns = append(columns, h)
		}
	}

	var (
		index core.Index
		rows  [][]float64
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		row := make([]float64, 0, len(columns))
		for j, cell := range rec {
			if j == idxPos {
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[j], err)
			}
			row = append(row, v)
		}
		if idxPos >= 0 {
			index = append(index, rec[idxPos])
		} else {
			index = append(index, strconv.Itoa(len(rows)))
		}
		rows = append(rows, row)
	}
	return NewFrame(index, columns, rows, targets...)
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// WriteCSV 写出带表头的 CSV，第一列为行索引。
func WriteCSV(w io.Writer, f *Frame, indexCol string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{indexCol}, f.columns...)); err != nil {
		return err
	}
	rec := make([]string, len(f.columns)+1)
	for i, r := range f.rows {
		rec[0] = f.index[i]
		for j, v := range r {
			rec[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
