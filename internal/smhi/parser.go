package smhi

import (
	"bufio"
	"io"
	"strings"

	"climate-check/internal/models"
)

// Column layout of the corrected-archive CSV. The payload starts with a
// free-form metadata preamble; the data section has the representative month
// in the third column, the temperature in the fourth, and the quality code
// in the fifth. The format is loose, so extraction is deliberately
// brute-force: anything that does not look like a data row is skipped here,
// and anything that looks like one but does not parse is dropped later as a
// malformed record.
const (
	periodColumn  = 2
	valueColumn   = 3
	qualityColumn = 4
	minColumns    = 5
)

// parseSeriesCSV extracts raw monthly records from an SMHI semicolon-separated
// payload. No validation happens here; see models.RawMonthlyRecord.
func parseSeriesCSV(r io.Reader) []models.RawMonthlyRecord {
	var records []models.RawMonthlyRecord

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}

		fields := strings.Split(line, ";")
		if len(fields) < minColumns {
			continue
		}

		period := strings.TrimSpace(fields[periodColumn])
		value := strings.TrimSpace(fields[valueColumn])
		if period == "" && value == "" {
			continue
		}

		records = append(records, models.RawMonthlyRecord{
			Period:  period,
			Value:   value,
			Quality: strings.TrimSpace(fields[qualityColumn]),
		})
	}

	return records
}
