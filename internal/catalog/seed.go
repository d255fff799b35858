package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// LoadSeed reads a JSON array of products from path and saves each one.
// It returns the number of products written.
func LoadSeed(ctx context.Context, repo Repository, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return 0, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}

	for _, p := range products {
		if _, err := repo.Save(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to seed product %d: %w", p.ID, err)
		}
	}
	return len(products), nil
}
