package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dtnitsch/content-gate/models"
)

// ErrArticleNotFound is returned when the store holds no article with the requested id.
var ErrArticleNotFound = errors.New("article not found")

// FileStore keeps one JSON document per article under a directory.
// It stands in for the remote content store; only the body is ever rewritten.
type FileStore struct {
	dir string
	fs  Storage
	now func() time.Time
}

// NewFileStore opens dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create articles directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid article id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Get loads one article.
func (s *FileStore) Get(ctx context.Context, id string) (models.Article, error) {
	if err := ctx.Err(); err != nil {
		return models.Article{}, err
	}
	p, err := s.path(id)
	if err != nil {
		return models.Article{}, err
	}

	data, err := s.fs.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return models.Article{}, fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	if err != nil {
		return models.Article{}, err
	}

	var a models.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return models.Article{}, fmt.Errorf("failed to decode article %s: %w", id, err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

// List returns every article ordered by id.
func (s *FileStore) List(ctx context.Context) ([]models.Article, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	var out []models.Article
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		a, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put writes the whole article.
func (s *FileStore) Put(ctx context.Context, a models.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(a.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode article %s: %w", a.ID, err)
	}
	return s.fs.SaveFile(p, append(data, '\n'))
}

// UpdateBody replaces the body of an existing article and bumps UpdatedAt.
func (s *FileStore) UpdateBody(ctx context.Context, id, body string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	a.BodyHTML = body
	a.UpdatedAt = s.now().UTC()
	return s.Put(ctx, a)
}
