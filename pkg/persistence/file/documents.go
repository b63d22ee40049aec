package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/stageflow/pkg/persistence"
)

// documents stores one JSON file per entity under root/dir.
type documents[T any] struct {
	dir string
}

func newDocuments[T any](root, name string) documents[T] {
	return documents[T]{dir: filepath.Join(root, name)}
}

// validateID rejects ids that would escape the documents directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (d documents[T]) path(id string) string {
	return filepath.Join(d.dir, id+".json")
}

func (d documents[T]) read(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(id)) // #nosec G304 -- id is validated above
	if err != nil {
		return nil, err
	}

	var doc T

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &doc, nil
}

func (d documents[T]) write(id string, doc *T) error {
	return d.writeFile(id, doc, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

// create writes the document only if it does not exist yet.
func (d documents[T]) create(id string, doc *T) error {
	return d.writeFile(id, doc, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
}

func (d documents[T]) writeFile(id string, doc *T, flag int) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.dir, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	f, err := os.OpenFile(d.path(id), flag, 0600) // #nosec G304 -- id is validated above
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return f.Close()
}

func (d documents[T]) remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	return os.Remove(d.path(id))
}

// list returns every readable document accepted by keep. Corrupt files are skipped.
func (d documents[T]) list(keep func(*T) bool) ([]*T, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*T{}, nil
		}

		return nil, fmt.Errorf("failed to read directory %s: %w", d.dir, err)
	}

	docs := make([]*T, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		doc, err := d.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		if keep(doc) {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}
