package ident

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
)

type hostPathProvider struct {
	path string
}

// NewHostPathProvider returns a Provider that reads a UUID from a file if
// it exists. If the file does not exist, it is first created with a new
// random UUID. This gives a node a stable identity across restarts.
func NewHostPathProvider(path string) Provider {
	return &hostPathProvider{
		path: path,
	}
}

func (p *hostPathProvider) UniqueIdentifier(ctx context.Context) (string, error) {
	if _, err := os.Stat(p.path); err == nil {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	newID := uuid.NewString()
	if err := os.WriteFile(p.path, []byte(newID), 0600); err != nil {
		return "", err
	}
	return newID, nil
}
