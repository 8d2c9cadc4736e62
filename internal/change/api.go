// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package change

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/request"
)

// DefaultPageSize is the number of changes requested when a [Query] doesn't
// set one.
const DefaultPageSize = 20

// APISource reads changes from the REST API of a Weblate instance.
type APISource struct {
	// BaseURL is the Weblate instance URL, like "https://hosted.weblate.org".
	BaseURL string
	// APIKey is an optional API token. Anonymous requests are subject to
	// stricter rate limits.
	APIKey     string
	HTTPClient *http.Client
}

// Fetch implements the [Source] interface.
func (s *APISource) Fetch(ctx context.Context, q Query) ([]Record, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(pageSize))
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	u := strings.TrimRight(s.BaseURL, "/") + "/api/projects/" + url.PathEscape(q.Project) + "/changes/?" + params.Encode()

	p := request.Params{
		Method:     http.MethodGet,
		URL:        u,
		HTTPClient: s.HTTPClient,
		Headers:    map[string]string{"Accept": "application/json"},
	}
	if s.APIKey != "" {
		p.Headers["Authorization"] = "Token " + s.APIKey
		p.Scrubber = strings.NewReplacer(s.APIKey, "[EXPUNGED]")
	}

	b, err := request.Make[[]byte](ctx, p)
	if err != nil {
		return nil, fetchErr(q.Project, err)
	}

	entries, err := decodeResults(b)
	if err != nil {
		return nil, fetchErr(q.Project, err)
	}

	log := logger.Get(ctx)
	recs := make([]Record, 0, len(entries))
	for i, raw := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			log.Warn("skipping malformed change", "project", q.Project, "index", i)
			continue
		}
		recs = append(recs, recordFromFields(fields))
	}
	return recs, nil
}

var errNoResults = errors.New("response has no results list")

// decodeResults accepts either a paginated response or a bare list.
func decodeResults(b []byte) ([]json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var page struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		return nil, errNoResults
	}
	return page.Results, nil
}

func recordFromFields(f map[string]json.RawMessage) Record {
	rec := Record{
		ID:             scalar(f["id"]),
		ActionName:     scalar(f["action_name"]),
		TargetText:     scalar(f["target"]),
		TranslationRef: scalar(f["translation"]),
		UserRef:        scalar(f["user"]),
		ComponentRef:   scalar(f["component"]),
		DetailURL:      scalar(f["url"]),
	}
	if ts := scalar(f["timestamp"]); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = t.UTC()
		}
	}
	return rec
}

// scalar renders a JSON string or number as a string. Anything else,
// including null, becomes an empty string.
func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
