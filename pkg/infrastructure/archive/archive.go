// Package archive keeps immutable engine runs as JSON objects, keyed by
// run kind and id, on the local filesystem or in an S3 bucket.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

var (
	// ErrExists is returned when a key was already written. Runs are never
	// overwritten.
	ErrExists = errors.New("archive: object already exists")
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("archive: object not found")
)

// Store is a create-only object store
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// RunKey is the object key of a run
func RunKey(meta entities.RunMeta) string {
	return fmt.Sprintf("runs/%s/%s/%s.json", meta.Kind, meta.ComputedAt.UTC().Format("2006/01/02"), meta.RunID)
}

// SaveRun archives a run under RunKey and returns the key
func SaveRun(ctx context.Context, store Store, meta entities.RunMeta, run interface{}) (string, error) {
	if meta.RunID == "" {
		return "", eris.New("archive: run has no id")
	}
	body, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "archive: encode %s run %s", meta.Kind, meta.RunID)
	}
	key := RunKey(meta)
	if err := store.Put(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}

// LoadRun decodes the archived run at key into v
func LoadRun(ctx context.Context, store Store, key string, v interface{}) error {
	body, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrapf(err, "archive: decode %s", key)
	}
	return nil
}

func sanitizeKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", eris.New("archive: empty key")
	case strings.Contains(key, ".."):
		return "", eris.Errorf("archive: invalid key %q", key)
	case strings.HasPrefix(key, "/"):
		return "", eris.Errorf("archive: absolute key %q", key)
	}
	return key, nil
}
