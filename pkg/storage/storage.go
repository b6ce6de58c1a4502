package storage

import (
	"context"
	"io"
)

// Storage is the object-store boundary finished recordings are handed
// to. Artifacts are addressed by flat names; prefixes group them.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	SaveFile(ctx context.Context, name, path string) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
