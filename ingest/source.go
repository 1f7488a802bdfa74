package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source yields raw governance records from one public data origin
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// StaticSource serves fixed records, or a fixed error
type StaticSource struct {
	name    string
	records []RawRecord
	err     error
}

func NewStaticSource(name string, records ...RawRecord) *StaticSource {
	return &StaticSource{name: name, records: records}
}

// NewFailingSource always fails with err
func NewFailingSource(name string, err error) *StaticSource {
	return &StaticSource{name: name, err: err}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]RawRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// FileSource reads a JSON or YAML list of records exported by a scraper
type FileSource struct {
	name string
	path string
}

func NewFileSource(name, path string) *FileSource {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &FileSource{name: name, path: path}
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var records []RawRecord
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &records)
	default:
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return records, nil
}
