// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package change

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"go.astrophena.name/weblatebot/internal/testutil"
)

func TestParseRef(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want Ref
	}{
		"empty": {
			in:   "",
			want: Ref{},
		},
		"component API URL": {
			in:   "https://hosted.weblate.org/api/components/demo/app/",
			want: Ref{Project: "demo", Component: "app"},
		},
		"translation API URL": {
			in:   "https://hosted.weblate.org/api/translations/demo/app/pt_BR/",
			want: Ref{Project: "demo", Component: "app", Language: "pt_BR"},
		},
		"translate URL with query": {
			in:   "https://hosted.weblate.org/translate/demo/app/de/?checksum=abc",
			want: Ref{Project: "demo", Component: "app", Language: "de"},
		},
		"projects path": {
			in:   "/projects/demo/website/fr/",
			want: Ref{Project: "demo", Component: "website", Language: "fr"},
		},
		"unknown path": {
			in:   "https://example.com/something/else/",
			want: Ref{},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, ParseRef(tc.in), tc.want)
		})
	}
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		rec  Record
		want string
	}{
		"from translation": {
			rec:  Record{TranslationRef: "https://hosted.weblate.org/api/translations/demo/app/uk/"},
			want: "uk",
		},
		"region tagged": {
			rec:  Record{TranslationRef: "/api/translations/demo/app/zh_Hans/"},
			want: "zh_Hans",
		},
		"falls back to detail URL": {
			rec: Record{
				TranslationRef: "https://hosted.weblate.org/api/components/demo/app/",
				DetailURL:      "https://hosted.weblate.org/translate/demo/app/es/?checksum=1",
			},
			want: "es",
		},
		"three letter code is not extracted": {
			rec:  Record{TranslationRef: "/api/translations/demo/app/ast/"},
			want: "",
		},
		"nothing": {
			rec:  Record{},
			want: "",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, Language(tc.rec), tc.want)
		})
	}
}

func TestUserName(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want string
	}{
		"API URL":    {in: "https://hosted.weblate.org/api/users/jane/", want: "jane"},
		"bare name":  {in: "jane", want: "jane"},
		"at sign":    {in: "/user/@jane", want: "jane"},
		"empty":      {in: "", want: ""},
		"no slashes": {in: "https://hosted.weblate.org", want: "hosted.weblate.org"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, UserName(tc.in), tc.want)
		})
	}
}

const testFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
  <channel>
    <title>Demo changes</title>
    <link>https://hosted.weblate.org/projects/demo/</link>
    <description>Recent changes</description>
    <item>
      <title>Translation changed</title>
      <link>https://hosted.weblate.org/translate/demo/app/de/?checksum=1</link>
      <description>&lt;p&gt;Hallo &amp;amp; &lt;b&gt;Welt&lt;/b&gt;&lt;/p&gt;</description>
      <pubDate>Tue, 25 Jun 2024 12:00:00 +0000</pubDate>
      <guid>https://hosted.weblate.org/changes/1/</guid>
    </item>
    <item>
      <title>Comment added</title>
      <link>https://hosted.weblate.org/translate/demo/app/fr/?checksum=2</link>
      <description>Bonjour</description>
      <pubDate>not a date</pubDate>
    </item>
  </channel>
</rss>
`

func TestFeedSource(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET example.com/exports/rss/demo/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	})

	s := &FeedSource{BaseURL: "https://example.com/", HTTPClient: testutil.MockHTTPClient(mux)}
	recs, err := s.Fetch(t.Context(), Query{Project: "demo"})
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, recs, []Record{
		{
			ID:             "https://hosted.weblate.org/changes/1/",
			ActionName:     "Translation changed",
			TargetText:     "Hallo & Welt",
			Timestamp:      time.Date(2024, time.June, 25, 12, 0, 0, 0, time.UTC),
			TranslationRef: "https://hosted.weblate.org/translate/demo/app/de/?checksum=1",
			ComponentRef:   "https://hosted.weblate.org/translate/demo/app/de/?checksum=1",
			DetailURL:      "https://hosted.weblate.org/translate/demo/app/de/?checksum=1",
		},
		{
			ID:             "https://hosted.weblate.org/translate/demo/app/fr/?checksum=2",
			ActionName:     "Comment added",
			TargetText:     "Bonjour",
			TranslationRef: "https://hosted.weblate.org/translate/demo/app/fr/?checksum=2",
			ComponentRef:   "https://hosted.weblate.org/translate/demo/app/fr/?checksum=2",
			DetailURL:      "https://hosted.weblate.org/translate/demo/app/fr/?checksum=2",
		},
	})
}

const testChanges = `{
  "count": 4,
  "results": [
    {
      "id": 42,
      "action_name": "Translation changed",
      "target": "Hallo",
      "timestamp": "2024-06-25T12:00:00.123Z",
      "translation": "https://example.com/api/translations/demo/app/de/",
      "user": "https://example.com/api/users/jane/",
      "component": "https://example.com/api/components/demo/app/",
      "url": "https://example.com/translate/demo/app/de/?checksum=1"
    },
    "not an object",
    {
      "id": "abc",
      "action_name": 7,
      "target": null,
      "timestamp": "yesterday",
      "translation": {"nested": true}
    },
    null
  ]
}`

func TestAPISource(t *testing.T) {
	t.Parallel()

	var gotQuery, gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET example.com/api/projects/demo/changes/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(testChanges))
	})

	s := &APISource{
		BaseURL:    "https://example.com",
		APIKey:     "wlu_secret",
		HTTPClient: testutil.MockHTTPClient(mux),
	}
	recs, err := s.Fetch(t.Context(), Query{Project: "demo", Language: "de", PageSize: 5})
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, gotQuery, "language=de&page_size=5")
	testutil.AssertEqual(t, gotAuth, "Token wlu_secret")
	testutil.AssertEqual(t, recs, []Record{
		{
			ID:             "42",
			ActionName:     "Translation changed",
			TargetText:     "Hallo",
			Timestamp:      time.Date(2024, time.June, 25, 12, 0, 0, 123000000, time.UTC),
			TranslationRef: "https://example.com/api/translations/demo/app/de/",
			UserRef:        "https://example.com/api/users/jane/",
			ComponentRef:   "https://example.com/api/components/demo/app/",
			DetailURL:      "https://example.com/translate/demo/app/de/?checksum=1",
		},
		{
			ID:         "abc",
			ActionName: "7",
		},
	})
}

func TestAPISourceDefaults(t *testing.T) {
	t.Parallel()

	var gotQuery, gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET example.com/api/projects/demo/changes/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	})

	s := &APISource{BaseURL: "https://example.com", HTTPClient: testutil.MockHTTPClient(mux)}
	recs, err := s.Fetch(t.Context(), Query{Project: "demo"})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(recs), 0)
	testutil.AssertEqual(t, gotQuery, "page_size=20")
	testutil.AssertEqual(t, gotAuth, "")
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET example.com/api/projects/down/changes/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET example.com/api/projects/garbage/changes/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})
	mux.HandleFunc("GET example.com/api/projects/empty/changes/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detail": "nope"}`))
	})
	mux.HandleFunc("GET example.com/exports/rss/down/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("GET example.com/exports/rss/garbage/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not a feed`))
	})
	httpc := testutil.MockHTTPClient(mux)

	cases := map[string]struct {
		src        Source
		project    string
		wantStatus int
		wantBody   string
	}{
		"API unavailable": {
			src:        &APISource{BaseURL: "https://example.com", APIKey: "wlu_secret", HTTPClient: httpc},
			project:    "down",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "maintenance\n",
		},
		"API malformed payload": {
			src:     &APISource{BaseURL: "https://example.com", HTTPClient: httpc},
			project: "garbage",
		},
		"API without results": {
			src:     &APISource{BaseURL: "https://example.com", HTTPClient: httpc},
			project: "empty",
		},
		"feed gone": {
			src:        &FeedSource{BaseURL: "https://example.com", HTTPClient: httpc},
			project:    "down",
			wantStatus: http.StatusGone,
			wantBody:   "gone\n",
		},
		"feed malformed": {
			src:     &FeedSource{BaseURL: "https://example.com", HTTPClient: httpc},
			project: "garbage",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.src.Fetch(t.Context(), Query{Project: tc.project})
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("want *FetchError, got %v", err)
			}
			testutil.AssertEqual(t, fe.Project, tc.project)
			testutil.AssertEqual(t, fe.StatusCode, tc.wantStatus)
			testutil.AssertEqual(t, fe.Body, tc.wantBody)
		})
	}
}
