package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_TrimsAndAllowsRaggedRows(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a, b ,c\n1,2\n"), ',')
	rows, err := collectRows(t, rowCh, errCh)

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2"}}, rows)
}

func TestStreamCSV_Semicolon(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("shop;title\nA;Krave\n"), ';')
	rows, err := collectRows(t, rowCh, errCh)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Krave"}, rows[1])
}

func TestDecodeJSONArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[map[string]int](context.Background(), strings.NewReader(`[{"a":1},{"a":2}]`))
	var got []int
	for item := range ch {
		got = append(got, item["a"])
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []int{1, 2}, got)
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	ch, errCh := DecodeJSONArray[map[string]int](context.Background(), strings.NewReader(""))
	for range ch {
		t.Fatal("unexpected element")
	}
	require.NoError(t, <-errCh)
}

func TestReadXLSX_MissingSheet(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"shop", "title"}})

	_, err := ReadXLSX(path, "Other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	rows, err := ReadXLSX(path, "Listings")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"shop", "title"}}, rows)
}
