// Package catalog loads the three category catalogs from disk, nests them
// into trees for display and watches the catalog files for changes.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/validation"
)

// Default catalog file names inside the catalog directory.
const (
	DefaultCanonicalFile = "shopzz_unified.json"
	DefaultSourceAFile   = "ozon_unified.json"
	DefaultSourceBFile   = "wb_unified.json"
)

// Catalogs holds one flat category list per platform.
type Catalogs struct {
	Canonical []domain.Category
	SourceA   []domain.Category
	SourceB   []domain.Category
}

// Files maps each platform to its catalog file name.
type Files map[domain.Platform]string

// DefaultFiles returns the standard catalog file names.
func DefaultFiles() Files {
	return Files{
		domain.PlatformCanonical: DefaultCanonicalFile,
		domain.PlatformSourceA:   DefaultSourceAFile,
		domain.PlatformSourceB:   DefaultSourceBFile,
	}
}

// Loader reads catalogs from a directory.
type Loader struct {
	dir       string
	files     Files
	validator *validation.Validator
	logger    *slog.Logger
}

// NewLoader creates a loader for dir. Platforms missing from files use the
// default file names.
func NewLoader(dir string, files Files, v *validation.Validator, logger *slog.Logger) *Loader {
	merged := DefaultFiles()
	for p, name := range files {
		if name != "" {
			merged[p] = name
		}
	}
	return &Loader{
		dir:       dir,
		files:     merged,
		validator: v,
		logger:    logger,
	}
}

// Dir returns the catalog directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Path returns the full path of the catalog file of platform.
func (l *Loader) Path(platform domain.Platform) string {
	return filepath.Join(l.dir, l.files[platform])
}

// Load reads and validates all three catalogs.
func (l *Loader) Load(ctx context.Context) (*Catalogs, error) {
	var out Catalogs
	targets := []struct {
		platform domain.Platform
		dst      *[]domain.Category
	}{
		{domain.PlatformCanonical, &out.Canonical},
		{domain.PlatformSourceA, &out.SourceA},
		{domain.PlatformSourceB, &out.SourceB},
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cats, err := l.LoadPlatform(t.platform)
		if err != nil {
			return nil, err
		}
		*t.dst = cats
	}

	l.logger.Info("catalogs loaded",
		slog.String("dir", l.dir),
		slog.Int("canonical", len(out.Canonical)),
		slog.Int("source_a", len(out.SourceA)),
		slog.Int("source_b", len(out.SourceB)))
	return &out, nil
}

// LoadPlatform reads and validates the catalog of a single platform.
func (l *Loader) LoadPlatform(platform domain.Platform) ([]domain.Category, error) {
	path := l.Path(platform)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("%s catalog file %s not found", platform, path)
		}
		return nil, fmt.Errorf("read %s catalog: %w", platform, err)
	}

	cats, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidArgument, "decode %s catalog %s", platform, path)
	}
	if err := l.validator.ValidateCategories(platform, cats); err != nil {
		return nil, err
	}

	// Unnamed entries load but can only be linked by hand.
	unnamed := 0
	for _, c := range cats {
		if strings.TrimSpace(c.Name) == "" {
			unnamed++
		}
	}
	if unnamed > 0 {
		l.logger.Warn("catalog has unnamed categories",
			slog.String("platform", string(platform)),
			slog.String("path", path),
			slog.Int("unnamed", unnamed))
	}
	return cats, nil
}

// Decode parses a catalog file. The file is either a bare JSON array of
// categories or an object holding that array under "categories".
func Decode(data []byte) ([]domain.Category, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Categories []domain.Category `json:"categories"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return domain.CloneCategories(wrapped.Categories), nil
	}

	var cats []domain.Category
	if err := json.Unmarshal(data, &cats); err != nil {
		return nil, err
	}
	return domain.CloneCategories(cats), nil
}
