package session

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/sse"
)

// Import formats reported by ImportState.
const (
	FormatV2     = "v2"
	FormatLegacy = "legacy"
)

// Keys of the pre-2.0 export file.
const (
	legacyMappedKey   = "mappedCategories"
	legacyMappingsKey = "mappings"
	legacySourceAKey  = "unmappedOzonCategories"
	legacySourceBKey  = "unmappedWbCategories"
)

// ExportState returns a deep copy of the current state in the current
// snapshot format.
func (s *Session) ExportState() *domain.Snapshot {
	return &domain.Snapshot{
		Version:            domain.SnapshotVersion,
		CanonicalAvailable: s.Available(domain.PlatformCanonical),
		SourceAAvailable:   s.Available(domain.PlatformSourceA),
		SourceBAvailable:   s.Available(domain.PlatformSourceB),
		Mappings:           s.Mappings(),
		ExportedAt:         s.now().UTC(),
	}
}

// ImportState replaces the session state with a serialized snapshot and
// returns the detected format.
//
// Snapshots with version >= 2 replace the pools and mapping records directly.
// Anything else is read as a legacy export: its flat records are translated
// into links on the current mapping records. Decoding is tolerant; fields that
// are missing or malformed are skipped. Only input that is not a JSON object
// is rejected.
func (s *Session) ImportState(data []byte) (string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		err = errors.InvalidArgument("snapshot must be a JSON object")
		s.logger.Warn("import rejected", slog.String("error", err.Error()))
		return "", err
	}

	format := FormatLegacy
	if v, ok := parseVersion(raw["version"]); ok && v >= 2 {
		format = FormatV2
		s.importV2(raw)
	} else {
		s.importLegacy(raw)
	}

	st := s.Stats()
	s.logger.Info("session imported",
		slog.String("format", format),
		slog.Int("canonical_total", st.CanonicalTotal),
		slog.Int("resolved", st.ResolvedCount))
	s.emitter.Emit(sse.NewSessionImportedEvent(s.id, format))
	return format, nil
}

// parseVersion accepts a version given as a JSON number or a numeric string.
func parseVersion(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// decodeField decodes raw[key] into dst. It reports false and leaves dst
// untouched when the key is absent or holds the wrong shape.
func (s *Session) decodeField(raw map[string]json.RawMessage, key string, dst any) bool {
	value, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return false
	}
	if err := json.Unmarshal(value, dst); err != nil {
		s.logger.Warn("skipping malformed snapshot field",
			slog.String("field", key),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *Session) importV2(raw map[string]json.RawMessage) {
	pools := []struct {
		key      string
		platform domain.Platform
	}{
		{"canonical_available", domain.PlatformCanonical},
		{"sourceA_available", domain.PlatformSourceA},
		{"sourceB_available", domain.PlatformSourceB},
	}
	for _, p := range pools {
		var cats []domain.Category
		if s.decodeField(raw, p.key, &cats) {
			s.available[p.platform] = domain.CloneCategories(cats)
		}
	}

	var mappings []*domain.CanonicalMapping
	if s.decodeField(raw, "mappings", &mappings) {
		s.mappings = sanitizeMappings(mappings)
		s.reindex()
	}
}

func (s *Session) importLegacy(raw map[string]json.RawMessage) {
	var records []json.RawMessage
	if !s.decodeField(raw, legacyMappedKey, &records) {
		s.decodeField(raw, legacyMappingsKey, &records)
	}

	// A legacy file describes the whole session, so start from a clean load.
	s.resetPools()
	s.InitializeMappings()

	var cats []domain.Category
	if s.decodeField(raw, legacySourceAKey, &cats) {
		s.available[domain.PlatformSourceA] = domain.CloneCategories(cats)
	}
	cats = nil
	if s.decodeField(raw, legacySourceBKey, &cats) {
		s.available[domain.PlatformSourceB] = domain.CloneCategories(cats)
	}

	var skipped int
	for _, r := range records {
		var rec domain.LegacyRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			skipped++
			continue
		}
		if !s.applyLegacyRecord(rec) {
			skipped++
		}
	}

	if skipped > 0 {
		s.logger.Warn("legacy records skipped",
			slog.Int("skipped", skipped),
			slog.Int("total", len(records)))
	}
}

// applyLegacyRecord turns one flat record into links on the mapping record
// of its canonical id. Records whose canonical id is unknown are skipped.
func (s *Session) applyLegacyRecord(rec domain.LegacyRecord) bool {
	m, ok := s.byID[rec.ShopzID]
	if rec.ShopzID.IsZero() || !ok {
		return false
	}

	linkedAt := s.now()
	if t, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
		linkedAt = t
	}

	add := func(platform domain.Platform, id domain.CategoryID, name string) {
		if id.IsZero() || m.FindLink(platform, id) >= 0 {
			return
		}
		key := linkKey{platform, id}
		if _, taken := s.owners[key]; taken {
			return
		}
		if name == "" {
			if c, found := s.lookup(platform, id); found {
				name = c.Name
			}
		}
		m.Links = append(m.Links, domain.CategoryLink{
			Platform:     platform,
			ExternalID:   id,
			ExternalName: name,
			LinkedAt:     linkedAt,
		})
		s.owners[key] = m.CanonicalID
		s.removeAvailable(platform, id)
	}

	add(domain.PlatformSourceA, rec.OzonID, rec.OzonName)
	add(domain.PlatformSourceB, rec.WbID, rec.WbName)
	if rec.NotSold {
		m.NotSold = true
	}
	m.UpdatedAt = linkedAt
	return true
}
