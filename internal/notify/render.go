// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"cmp"
	"fmt"
	"html"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/config"
)

// MaxTargetLen is the number of characters of the translated text kept in a
// message.
const MaxTargetLen = 100

const (
	defaultEmoji = "🌍"
	timeLayout   = "2006-01-02 15:04 MST"
	unknown      = "unknown"
)

// Render formats rec as an HTML message for p. A fallback message announces
// the newest known change instead of a new one. Timestamps are shown in loc.
func Render(rec change.Record, p config.Project, fallback bool, window time.Duration, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	ref := change.ParseRef(rec.ComponentRef)
	if ref.Component == "" {
		ref = change.ParseRef(rec.DetailURL)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>%s</b>\n", cmp.Or(p.Emoji, defaultEmoji), html.EscapeString(p.DisplayName()))
	if fallback {
		fmt.Fprintf(&sb, "<i>No new changes in the last %s, latest known change:</i>\n", formatWindow(window))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "📦 <b>Component:</b> %s\n", html.EscapeString(cmp.Or(ref.Component, unknown)))
	fmt.Fprintf(&sb, "🗣 <b>Language:</b> %s\n", html.EscapeString(cmp.Or(change.Language(rec), unknown)))
	fmt.Fprintf(&sb, "🔖 <b>Action:</b> %s\n", html.EscapeString(Label(rec.ActionName)))
	fmt.Fprintf(&sb, "👤 <b>User:</b> %s\n", html.EscapeString(cmp.Or(change.UserName(rec.UserRef), unknown)))
	if !rec.Timestamp.IsZero() {
		fmt.Fprintf(&sb, "🕒 <b>Time:</b> %s\n", rec.Timestamp.In(loc).Format(timeLayout))
	}
	if rec.TargetText != "" {
		fmt.Fprintf(&sb, "\n<i>%s</i>\n", html.EscapeString(Truncate(rec.TargetText, MaxTargetLen)))
	}
	if rec.DetailURL != "" {
		fmt.Fprintf(&sb, "\n<a href=\"%s\">View on Weblate</a>", html.EscapeString(rec.DetailURL))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Truncate cuts s to n characters and appends "..." if s is longer.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// formatWindow renders d without trailing zero units, so 2h0m0s becomes 2h.
func formatWindow(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}
