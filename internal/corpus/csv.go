package corpus

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
)

func parseCSV(data []byte) ([]row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	qIdx, aIdx := detectColumns(headers)
	if qIdx < 0 || aIdx < 0 {
		return nil, fmt.Errorf("%w: need question and answer columns, got %v", appErr.ErrCorpusShape, headers)
	}
	var rows []row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		r := row{line: line}
		if qIdx < len(record) {
			r.question = record[qIdx]
		}
		if aIdx < len(record) {
			r.answer = record[aIdx]
		}
		rows = append(rows, r)
	}
	return rows, nil
}
