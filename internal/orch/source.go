package orch

import (
	"context"
	"fmt"
	"os"

	"redline/internal/gateway"
)

// FileSource reads the diff from a local file instead of the remote.
// Used for offline and dry runs.
type FileSource struct {
	Path string
}

func (s FileSource) FetchDiff(_ context.Context, _ gateway.Target) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("reading diff file: %w", err)
	}
	return string(data), nil
}
