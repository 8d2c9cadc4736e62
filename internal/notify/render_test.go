// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"strings"
	"testing"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/config"
	"go.astrophena.name/weblatebot/internal/testutil"
)

var testRecord = change.Record{
	ID:             "42",
	ActionName:     "Translation changed",
	TargetText:     "Hallo <Welt> & Co",
	Timestamp:      time.Date(2025, time.March, 1, 12, 30, 0, 0, time.UTC),
	TranslationRef: "https://hosted.weblate.org/api/translations/demo/app/de/",
	UserRef:        "https://hosted.weblate.org/api/users/jane/",
	ComponentRef:   "https://hosted.weblate.org/api/components/demo/app/",
	DetailURL:      "https://hosted.weblate.org/translate/demo/app/de/?checksum=1&x=2",
}

func TestRender(t *testing.T) {
	t.Parallel()

	p := config.Project{Slug: "demo", Name: "Demo & Friends", Emoji: "🧪"}
	got := Render(testRecord, p, false, 2*time.Hour, time.UTC)
	want := `🧪 <b>Demo &amp; Friends</b>

📦 <b>Component:</b> app
🗣 <b>Language:</b> de
🔖 <b>Action:</b> ✏️ Translation changed
👤 <b>User:</b> jane
🕒 <b>Time:</b> 2025-03-01 12:30 UTC

<i>Hallo &lt;Welt&gt; &amp; Co</i>

<a href="https://hosted.weblate.org/translate/demo/app/de/?checksum=1&amp;x=2">View on Weblate</a>`
	testutil.AssertEqual(t, got, want)
}

func TestRenderFallback(t *testing.T) {
	t.Parallel()

	p := config.Project{Slug: "demo"}
	got := Render(change.Record{ID: "1", ActionName: "Something odd"}, p, true, 90*time.Minute, nil)
	want := `🌍 <b>demo</b>
<i>No new changes in the last 1h30m, latest known change:</i>

📦 <b>Component:</b> unknown
🗣 <b>Language:</b> unknown
🔖 <b>Action:</b> 📝 Change
👤 <b>User:</b> unknown`
	testutil.AssertEqual(t, got, want)
}

func TestRenderLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("MSK", 3*60*60)
	got := Render(testRecord, config.Project{Slug: "demo"}, false, time.Hour, loc)
	if !strings.Contains(got, "2025-03-01 15:30 MSK") {
		t.Fatalf("timestamp is not localized:\n%s", got)
	}
}

func TestRenderTruncatesTarget(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("я", 150)
	rec := change.Record{ID: "1", TargetText: long}
	got := Render(rec, config.Project{Slug: "demo"}, false, time.Hour, time.UTC)
	if !strings.Contains(got, "<i>"+strings.Repeat("я", 100)+"...</i>") {
		t.Fatalf("target text is not truncated:\n%s", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want string
	}{
		"short":     {in: "hello", want: "hello"},
		"exact":     {in: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		"long":      {in: strings.Repeat("a", 101), want: strings.Repeat("a", 100) + "..."},
		"multibyte": {in: strings.Repeat("ü", 120), want: strings.Repeat("ü", 100) + "..."},
		"empty":     {in: "", want: ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, Truncate(tc.in, MaxTargetLen), tc.want)
		})
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		action string
		want   string
	}{
		"exact":              {action: "Translation changed", want: "✏️ Translation changed"},
		"longest wins":       {action: "Suggestion removed", want: "🗑 Suggestion removed"},
		"generic":            {action: "Translation replaced", want: "✏️ Translation"},
		"case insensitive":   {action: "COMMENT ADDED", want: "💬 Comment added"},
		"automatic":          {action: "Automatic translation", want: "🤖 Automatic translation"},
		"new source string":  {action: "New source string", want: "➕ New source string"},
		"unknown":            {action: "Project created", want: DefaultLabel},
		"empty":              {action: "", want: DefaultLabel},
		"resource update":    {action: "Resource updated", want: "🔄 Resource updated"},
		"translation upload": {action: "Translation uploaded", want: "📤 Translation uploaded"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, Label(tc.action), tc.want)
		})
	}
}

func TestFormatWindow(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		2 * time.Hour:    "2h",
		90 * time.Minute: "1h30m",
		5 * time.Minute:  "5m",
		30 * time.Second: "30s",
	}
	for d, want := range cases {
		testutil.AssertEqual(t, formatWindow(d), want)
	}
}
