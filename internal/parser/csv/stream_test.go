package csv

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"chartetl/internal/config"
	"chartetl/internal/etlerr"
)

func collect(t *testing.T, raw string, columns []string, opt config.Options) ([][]string, error) {
	t.Helper()

	out := make(chan []string, 64)
	var rows [][]string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range out {
			rows = append(rows, r)
		}
	}()

	err := Stream(context.Background(), io.NopCloser(strings.NewReader(raw)), columns, opt, out, nil)
	close(out)
	<-done
	return rows, err
}

func TestStream_HeaderMapAndReorder(t *testing.T) {
	t.Parallel()

	raw := "title,artist,streams\nSong A,Artist A,100\nSong B,Artist B,200\n"
	opt := config.Options{
		"has_header": true,
		"header_map": map[string]any{"title": "track_name", "artist": "artist_name"},
	}

	rows, err := collect(t, raw, []string{"artist_name", "track_name", "streams"}, opt)
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "Artist A" || rows[0][1] != "Song A" || rows[0][2] != "100" {
		t.Fatalf("row 0 = %v, want [Artist A Song A 100]", rows[0])
	}
}

func TestStream_MissingColumnIsSchemaError(t *testing.T) {
	t.Parallel()

	raw := "title,artist\nSong A,Artist A\n"
	_, err := collect(t, raw, []string{"title", "streams"}, config.Options{"has_header": true})

	var se *etlerr.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *etlerr.SchemaError", err)
	}
	if se.Column != "streams" {
		t.Fatalf("SchemaError.Column = %q, want %q", se.Column, "streams")
	}
}

func TestStream_ShortRowsSoftDropped(t *testing.T) {
	t.Parallel()

	raw := "a,b\n1,2\n3\n4,5\n"
	out := make(chan []string, 8)
	var dropped int
	err := Stream(context.Background(), io.NopCloser(strings.NewReader(raw)),
		[]string{"a", "b"}, config.Options{"has_header": true}, out,
		func(line int, err error) { dropped++ })
	close(out)
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	var rows [][]string
	for r := range out {
		rows = append(rows, r)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestStream_BOMStrippedFromHeader(t *testing.T) {
	t.Parallel()

	raw := "\uFEFFa,b\n1,2\n"
	rows, err := collect(t, raw, []string{"a", "b"}, config.Options{"has_header": true})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "1" {
		t.Fatalf("rows = %v, want [[1 2]]", rows)
	}
}

func TestStream_CustomDelimiter(t *testing.T) {
	t.Parallel()

	raw := "a;b\n1;2\n"
	rows, err := collect(t, raw, []string{"b", "a"}, config.Options{"has_header": true, "comma": ";"})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "2" || rows[0][1] != "1" {
		t.Fatalf("rows = %v, want [[2 1]]", rows)
	}
}
