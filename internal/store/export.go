package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/markwise/internal/model"
)

// ExportResults builds the export document holding every stored exam result.
// backend names the store the results were read from.
func ExportResults(ctx context.Context, s Store, backend string) (*model.ResultsExport, error) {
	results, err := s.ListAllResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return &model.ResultsExport{
		ExportedAt: time.Now().UTC(),
		Store:      backend,
		NumResults: len(results),
		Results:    results,
	}, nil
}
