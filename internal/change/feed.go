// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package change

import (
	"context"
	"html"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/request"

	"github.com/mmcdole/gofeed"
)

// FeedSource reads changes from the RSS export of a project.
type FeedSource struct {
	// BaseURL is the Weblate instance URL, like "https://hosted.weblate.org".
	BaseURL    string
	HTTPClient *http.Client
}

// Fetch implements the [Source] interface. The feed can't be filtered, so
// q.Language and q.PageSize are ignored.
func (s *FeedSource) Fetch(ctx context.Context, q Query) ([]Record, error) {
	url := strings.TrimRight(s.BaseURL, "/") + "/exports/rss/" + q.Project + "/"

	b, err := request.Make[[]byte](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        url,
		HTTPClient: s.HTTPClient,
	})
	if err != nil {
		return nil, fetchErr(q.Project, err)
	}

	feed, err := gofeed.NewParser().ParseString(string(b))
	if err != nil {
		return nil, fetchErr(q.Project, err)
	}

	logger.Get(ctx).Debug("parsed feed", "project", q.Project, "items", len(feed.Items))

	recs := make([]Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		recs = append(recs, recordFromItem(item))
	}
	return recs, nil
}

func recordFromItem(item *gofeed.Item) Record {
	rec := Record{
		ID:             item.GUID,
		ActionName:     strings.TrimSpace(item.Title),
		TargetText:     stripHTML(item.Description),
		DetailURL:      item.Link,
		TranslationRef: item.Link,
		ComponentRef:   item.Link,
	}
	if rec.ID == "" {
		rec.ID = item.Link
	}
	switch {
	case item.PublishedParsed != nil:
		rec.Timestamp = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		rec.Timestamp = item.UpdatedParsed.UTC()
	}
	if item.Author != nil {
		rec.UserRef = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		rec.UserRef = item.Authors[0].Name
	}
	return rec
}

var (
	tagRe   = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`<[^>]*>`) })
	spaceRe = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`\s+`) })
)

func stripHTML(s string) string {
	s = tagRe().ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRe().ReplaceAllString(s, " "))
}
