// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package change fetches change records of a translation project from a
// Weblate instance and normalizes them into a common shape.
package change

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/weblatebot/internal/request"
)

// Record is a single change reported by Weblate. Records are never modified
// after a source produces them.
type Record struct {
	ID             string    `json:"id"`
	ActionName     string    `json:"action_name"`
	TargetText     string    `json:"target,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	TranslationRef string    `json:"translation,omitempty"`
	UserRef        string    `json:"user,omitempty"`
	ComponentRef   string    `json:"component,omitempty"`
	DetailURL      string    `json:"url,omitempty"`
}

// Query selects which changes a [Source] fetches.
type Query struct {
	// Project is the project slug.
	Project string
	// Language optionally restricts changes to one language code. Sources
	// that can't filter by language ignore it.
	Language string
	// PageSize is the maximum number of changes to request. Zero means the
	// source default.
	PageSize int
}

// Source fetches change records of a project.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]Record, error)
}

// FetchError is returned by sources when a project's changes can't be
// fetched or decoded.
type FetchError struct {
	Project string
	// StatusCode is the HTTP status code, if a response was received.
	StatusCode int
	// Body is the response body of a non-2xx response.
	Body string
	Err  error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching changes of %q: got %d: %s", e.Project, e.StatusCode, strings.TrimSpace(e.Body))
	}
	return fmt.Sprintf("fetching changes of %q: %v", e.Project, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(project string, err error) error {
	fe := &FetchError{Project: project, Err: err}
	var se *request.StatusError
	if errors.As(err, &se) {
		fe.StatusCode = se.StatusCode
		fe.Body = string(se.Body)
	}
	return fe
}

// Ref is what can be learned about a change from a path-like reference such
// as a component or translation URL.
type Ref struct {
	Project   string
	Component string
	Language  string
}

// refPrefixes are path prefixes followed by project, component and language
// segments.
var refPrefixes = [][]string{
	{"api", "translations"},
	{"api", "components"},
	{"api", "projects"},
	{"translate"},
	{"projects"},
	{"changes", "browse"},
}

// ParseRef extracts project, component and language slugs from ref. It
// accepts absolute URLs and bare paths. Unknown references yield a zero Ref.
func ParseRef(ref string) Ref {
	if ref == "" {
		return Ref{}
	}
	path := ref
	if u, err := url.Parse(ref); err == nil {
		path = u.Path
	}
	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	for i := range segs {
		for _, prefix := range refPrefixes {
			if !hasPrefixAt(segs, i, prefix) {
				continue
			}
			rest := segs[i+len(prefix):]
			var r Ref
			if len(rest) > 0 {
				r.Project = rest[0]
			}
			if len(rest) > 1 {
				r.Component = rest[1]
			}
			if len(rest) > 2 {
				r.Language = rest[2]
			}
			return r
		}
	}
	return Ref{}
}

func hasPrefixAt(segs []string, i int, prefix []string) bool {
	if len(segs)-i < len(prefix) {
		return false
	}
	for j, p := range prefix {
		if segs[i+j] != p {
			return false
		}
	}
	return true
}

var languageRe = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^[a-z]{2}(?:[_-][A-Za-z]{2,4})?$`)
})

// Language returns the language code of rec, taken from its translation
// reference or its detail URL. It returns an empty string if neither holds a
// two-letter, optionally region-tagged code.
func Language(rec Record) string {
	for _, ref := range []string{rec.TranslationRef, rec.DetailURL} {
		if lang := ParseRef(ref).Language; languageRe().MatchString(lang) {
			return lang
		}
	}
	return ""
}

// UserName returns the display name encoded in a user reference, which is
// its last path segment.
func UserName(ref string) string {
	path := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	return strings.TrimPrefix(path, "@")
}
