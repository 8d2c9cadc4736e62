// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package selector

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/testutil"
)

var now = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, age time.Duration, lang string) change.Record {
	return change.Record{
		ID:             id,
		ActionName:     "Translation changed",
		Timestamp:      now.Add(-age),
		ComponentRef:   "https://hosted.weblate.org/api/components/demo/app/",
		TranslationRef: "https://hosted.weblate.org/api/translations/demo/app/" + lang + "/",
	}
}

func ids(recs []change.Record) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func fiveRecords() []change.Record {
	return []change.Record{
		rec("150", 150*time.Minute, "de"),
		rec("10", 10*time.Minute, "de"),
		rec("200", 200*time.Minute, "de"),
		rec("30", 30*time.Minute, "de"),
		rec("90", 90*time.Minute, "de"),
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		records      []change.Record
		criteria     Criteria
		wantIDs      []string
		wantFallback bool
		wantFiltered int
		wantRecent   int
	}{
		"recent records newest first": {
			records:      fiveRecords(),
			criteria:     Criteria{Slug: "demo", Window: 120 * time.Minute, MaxNotify: 5, EmitFallbackWhenEmpty: true},
			wantIDs:      []string{"10", "30", "90"},
			wantFiltered: 5,
			wantRecent:   3,
		},
		"capped": {
			records:      fiveRecords(),
			criteria:     Criteria{Slug: "demo", Window: 120 * time.Minute, MaxNotify: 1},
			wantIDs:      []string{"10"},
			wantFiltered: 5,
			wantRecent:   3,
		},
		"fallback to newest": {
			records:      fiveRecords(),
			criteria:     Criteria{Slug: "demo", Window: 5 * time.Minute, MaxNotify: 3, EmitFallbackWhenEmpty: true},
			wantIDs:      []string{"10"},
			wantFallback: true,
			wantFiltered: 5,
		},
		"fallback disabled": {
			records:      fiveRecords(),
			criteria:     Criteria{Slug: "demo", Window: 5 * time.Minute, MaxNotify: 3},
			wantFiltered: 5,
		},
		"window boundary is inclusive": {
			records:      fiveRecords(),
			criteria:     Criteria{Slug: "demo", Window: 90 * time.Minute, MaxNotify: 3},
			wantIDs:      []string{"10", "30", "90"},
			wantFiltered: 5,
			wantRecent:   3,
		},
		"other project dropped": {
			records: []change.Record{
				rec("1", time.Minute, "de"),
				{ID: "2", Timestamp: now, ComponentRef: "/api/components/other/app/"},
			},
			criteria:     Criteria{Slug: "demo", Window: time.Hour, MaxNotify: 3},
			wantIDs:      []string{"1"},
			wantFiltered: 1,
			wantRecent:   1,
		},
		"unknown project kept": {
			records:      []change.Record{{ID: "1", Timestamp: now}},
			criteria:     Criteria{Slug: "demo", Window: time.Hour, MaxNotify: 3},
			wantIDs:      []string{"1"},
			wantFiltered: 1,
			wantRecent:   1,
		},
		"component filter": {
			records: []change.Record{
				rec("1", time.Minute, "de"),
				{ID: "2", Timestamp: now, ComponentRef: "/api/components/demo/website/"},
				{ID: "3", Timestamp: now},
			},
			criteria:     Criteria{Slug: "demo", Components: []string{"web"}, Window: time.Hour, MaxNotify: 3},
			wantIDs:      []string{"2"},
			wantFiltered: 1,
			wantRecent:   1,
		},
		"component from translation reference": {
			records: []change.Record{
				{ID: "1", Timestamp: now, TranslationRef: "/api/translations/demo/website/de/"},
				{ID: "2", Timestamp: now, TranslationRef: "/api/translations/demo/app/de/"},
				{ID: "3", Timestamp: now, TranslationRef: "/api/translations/other/website/de/"},
			},
			criteria:     Criteria{Slug: "demo", Components: []string{"web"}, Window: time.Hour, MaxNotify: 3},
			wantIDs:      []string{"1"},
			wantFiltered: 1,
			wantRecent:   1,
		},
		"language filter": {
			records: []change.Record{
				rec("de", time.Minute, "de"),
				rec("fr", 2*time.Minute, "fr"),
				rec("pt_BR", 3*time.Minute, "pt_BR"),
				rec("unknown", 4*time.Minute, "cat"),
			},
			criteria:     Criteria{Slug: "demo", Languages: []string{"DE", "pt"}, Window: time.Hour, MaxNotify: 5},
			wantIDs:      []string{"de", "pt_BR", "unknown"},
			wantFiltered: 3,
			wantRecent:   3,
		},
		"regional language filter": {
			records: []change.Record{
				rec("pt", time.Minute, "pt"),
				rec("pt_BR", 2*time.Minute, "pt_BR"),
			},
			criteria:     Criteria{Slug: "demo", Languages: []string{"pt-br"}, Window: time.Hour, MaxNotify: 5},
			wantIDs:      []string{"pt_BR"},
			wantFiltered: 1,
			wantRecent:   1,
		},
		"duplicates keep first": {
			records: []change.Record{
				rec("1", time.Minute, "de"),
				{ID: "1", Timestamp: now, ActionName: "Comment added"},
				rec("2", 2*time.Minute, "de"),
			},
			criteria:     Criteria{Slug: "demo", Window: time.Hour, MaxNotify: 5},
			wantIDs:      []string{"1", "2"},
			wantFiltered: 2,
			wantRecent:   2,
		},
		"keep rule": {
			records: fiveRecords(),
			criteria: Criteria{
				Slug:      "demo",
				Window:    time.Hour,
				MaxNotify: 5,
				Keep:      func(r change.Record) bool { return r.ID != "10" },
			},
			wantIDs:      []string{"30"},
			wantFiltered: 4,
			wantRecent:   1,
		},
		"nothing": {
			criteria: Criteria{Slug: "demo", Window: time.Hour, MaxNotify: 5, EmitFallbackWhenEmpty: true},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			sel := Select(tc.records, now, tc.criteria)
			testutil.AssertEqual(t, ids(sel.Records), tc.wantIDs)
			testutil.AssertEqual(t, sel.Fallback, tc.wantFallback)
			testutil.AssertEqual(t, sel.Filtered, tc.wantFiltered)
			testutil.AssertEqual(t, sel.Recent, tc.wantRecent)
		})
	}
}

func TestDedupIdempotent(t *testing.T) {
	t.Parallel()

	recs := []change.Record{
		{ID: "a"}, {ID: "b"}, {ID: "a", ActionName: "dup"}, {ID: "c"}, {ID: "b"},
	}
	once := Dedup(recs)
	testutil.AssertEqual(t, ids(once), []string{"a", "b", "c"})
	testutil.AssertEqual(t, Dedup(once), once)
	testutil.AssertEqual(t, once[0].ActionName, "")
}

// TestSelectProperties checks invariants of Select over random batches.
func TestSelectProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for i := range 200 {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			n := r.IntN(20)
			var recs []change.Record
			for j := range n {
				age := time.Duration(r.IntN(300)) * time.Minute
				recs = append(recs, rec(fmt.Sprint(r.IntN(n+1), "-", j%3), age, "de"))
			}
			c := Criteria{
				Slug:                  "demo",
				Window:                time.Duration(1+r.IntN(180)) * time.Minute,
				MaxNotify:             r.IntN(6),
				EmitFallbackWhenEmpty: r.IntN(2) == 0,
			}
			sel := Select(recs, now, c)

			if len(sel.Records) > c.MaxNotify {
				t.Fatalf("got %d records, want at most %d", len(sel.Records), c.MaxNotify)
			}
			for k, rec := range sel.Records {
				if !sel.Fallback && now.Sub(rec.Timestamp) > c.Window {
					t.Fatalf("record %q is older than the window", rec.ID)
				}
				if k > 0 && rec.Timestamp.After(sel.Records[k-1].Timestamp) {
					t.Fatalf("records are not ordered newest first")
				}
			}
			if sel.Fallback && len(sel.Records) != 1 {
				t.Fatalf("fallback returned %d records", len(sel.Records))
			}
			testutil.AssertEqual(t, ids(Dedup(sel.Records)), ids(sel.Records))
		})
	}
}
