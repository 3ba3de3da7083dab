// Package datasource defines where raw chart data comes from. A Source
// yields an io.ReadCloser over the raw bytes; concrete implementations live
// in subpackages.
package datasource

import (
	"context"
	"fmt"
	"io"

	"chartetl/internal/config"
	"chartetl/internal/datasource/file"
)

// Source is anything that can open the raw input for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ForPipeline returns the Source the normalize stage should read. HTTP
// sources resolve to the local path the extract stage downloaded into; the
// download itself is the extract stage's job.
func ForPipeline(p config.Pipeline) (Source, error) {
	switch p.Source.Kind {
	case "file":
		return file.NewLocal(p.Source.File.Path), nil
	case "http":
		return file.NewLocal(p.Source.HTTP.Path), nil
	default:
		return nil, fmt.Errorf("datasource: unsupported source.kind %q", p.Source.Kind)
	}
}
