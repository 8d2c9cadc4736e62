// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package selector decides which fetched changes of a project are worth a
// notification.
package selector

import (
	"slices"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
)

// Criteria controls [Select].
type Criteria struct {
	// Slug is the project slug. Records that belong to another project are
	// dropped.
	Slug string
	// Languages, if not empty, restricts records to these language codes.
	// A code also matches its regional variants, so "pt" matches "pt_BR".
	Languages []string
	// Components, if not empty, restricts records to components whose slug
	// contains one of these substrings.
	Components []string
	// Window is the maximum age of a recent record.
	Window time.Duration
	// MaxNotify caps the number of selected records.
	MaxNotify int
	// EmitFallbackWhenEmpty selects the newest record when no record is
	// recent.
	EmitFallbackWhenEmpty bool
	// Keep is an optional extra predicate applied after the built-in filters.
	Keep func(change.Record) bool
}

// Selection is the result of [Select].
type Selection struct {
	// Records are ordered newest first.
	Records []change.Record
	// Fallback reports that Records holds the newest known record and not a
	// recent one.
	Fallback bool
	// Filtered is the number of distinct records that passed the filters.
	Filtered int
	// Recent is the number of filtered records inside the window, before
	// capping to MaxNotify.
	Recent int
}

// Select filters, deduplicates and orders records, keeping those younger
// than c.Window relative to now.
func Select(records []change.Record, now time.Time, c Criteria) Selection {
	langs := make([]string, 0, len(c.Languages))
	for _, l := range c.Languages {
		langs = append(langs, normalizeLang(l))
	}

	var kept []change.Record
	for _, rec := range records {
		if !matchesComponent(rec, c.Slug, c.Components) {
			continue
		}
		if !matchesLanguage(rec, langs) {
			continue
		}
		if c.Keep != nil && !c.Keep(rec) {
			continue
		}
		kept = append(kept, rec)
	}

	kept = Dedup(kept)
	slices.SortStableFunc(kept, func(a, b change.Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	sel := Selection{Filtered: len(kept)}
	for _, rec := range kept {
		if now.Sub(rec.Timestamp) <= c.Window {
			sel.Records = append(sel.Records, rec)
		}
	}
	sel.Recent = len(sel.Records)

	limit := max(c.MaxNotify, 0)
	if len(sel.Records) > limit {
		sel.Records = sel.Records[:limit]
	}

	if sel.Recent == 0 && c.EmitFallbackWhenEmpty && len(kept) > 0 && limit > 0 {
		sel.Records = []change.Record{kept[0]}
		sel.Fallback = true
	}

	return sel
}

// Dedup returns records without repeated IDs, keeping the first occurrence
// of each. Applying it to its own output changes nothing.
func Dedup(records []change.Record) []change.Record {
	seen := make(map[string]bool, len(records))
	out := make([]change.Record, 0, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	return out
}

// matchesComponent reports whether rec belongs to project slug and, when
// allowed is set, to one of the allowed components. A record whose project
// can't be determined is kept.
func matchesComponent(rec change.Record, slug string, allowed []string) bool {
	var ref change.Ref
	for _, s := range []string{rec.ComponentRef, rec.TranslationRef, rec.DetailURL} {
		if ref = change.ParseRef(s); ref.Project != "" {
			break
		}
	}
	if ref.Project != "" && slug != "" && ref.Project != slug {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if ref.Component != "" && strings.Contains(ref.Component, a) {
			return true
		}
	}
	return false
}

// matchesLanguage reports whether rec is written in one of langs, which must
// be normalized. Records without a recognizable language are kept.
func matchesLanguage(rec change.Record, langs []string) bool {
	if len(langs) == 0 {
		return true
	}
	lang := change.Language(rec)
	if lang == "" {
		return true
	}
	lang = normalizeLang(lang)
	base, _, _ := strings.Cut(lang, "_")
	for _, l := range langs {
		if l == lang || l == base {
			return true
		}
	}
	return false
}

func normalizeLang(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
