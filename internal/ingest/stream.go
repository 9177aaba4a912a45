package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// StreamCSV reads delimited rows and sends them, trimmed, on the returned
// channel. Both channels are closed when reading stops; at most one error is
// sent.
func StreamCSV(ctx context.Context, r io.Reader, comma rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if comma != 0 {
			reader.Comma = comma
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: csv cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read csv row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: csv cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadXLSX returns every row of a worksheet as strings. An empty sheet name
// selects the first sheet.
func ReadXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", sheetName)
		}
		sheet = s
	case len(f.Sheets) == 0:
		return nil, eris.New("ingest: workbook has no sheets")
	default:
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// DecodeJSONArray streams the elements of a top-level JSON array. Both
// channels are closed when decoding stops.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "ingest: read json opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("ingest: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: json cancelled")
				return
			}
			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "ingest: decode json element")
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: json cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}
