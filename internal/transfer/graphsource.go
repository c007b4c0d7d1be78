package transfer

import (
	"context"
	"io"

	"github.com/opsrelay/relay-core/internal/connector/graph"
)

// GraphSource adapts the SharePoint connector to the engine's Source.
type GraphSource struct {
	g *graph.Graph
}

// NewGraphSource wraps a Graph connector.
func NewGraphSource(g *graph.Graph) *GraphSource {
	return &GraphSource{g: g}
}

// Enumerate walks the drive tree under root.
func (s *GraphSource) Enumerate(ctx context.Context, root string) ([]File, error) {
	items, err := s.g.EnumerateFiles(ctx, root)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(items))
	for _, it := range items {
		files = append(files, File{ID: it.ID, Name: it.Name, Path: it.Path, Size: it.Size})
	}
	return files, nil
}

// Open streams a file's content.
func (s *GraphSource) Open(ctx context.Context, f File) (io.ReadCloser, int64, error) {
	return s.g.Download(ctx, f.ID)
}
