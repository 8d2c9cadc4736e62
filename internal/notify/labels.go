// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import "strings"

// DefaultLabel describes actions missing from the label table.
const DefaultLabel = "📝 Change"

// labels maps lowercase substrings of Weblate action names to descriptions.
var labels = map[string]string{
	"translation":           "✏️ Translation",
	"translation changed":   "✏️ Translation changed",
	"translation added":     "🆕 New translation",
	"new translation":       "🆕 New translation",
	"translation approved":  "✅ Translation approved",
	"translation reverted":  "↩️ Translation reverted",
	"translation uploaded":  "📤 Translation uploaded",
	"translation completed": "🏁 Translation completed",
	"automatic translation": "🤖 Automatic translation",
	"marked for edit":       "🔖 Marked for edit",
	"suggestion":            "💡 Suggestion",
	"suggestion added":      "💡 Suggestion added",
	"suggestion removed":    "🗑 Suggestion removed",
	"suggestion accepted":   "👍 Suggestion accepted",
	"comment":               "💬 Comment",
	"comment added":         "💬 Comment added",
	"comment resolved":      "☑️ Comment resolved",
	"source string":         "🔤 Source string changed",
	"new source string":     "➕ New source string",
	"new string":            "➕ New strings to translate",
	"string removed":        "➖ String removed",
	"resource update":       "🔄 Resource updated",
	"repository":            "🗄 Repository operation",
	"pushed":                "⬆️ Changes pushed",
	"committed":             "💾 Changes committed",
	"alert":                 "⚠️ Alert",
	"bulk edit":             "🧹 Bulk edit",
	"glossary":              "📚 Glossary",
	"screenshot":            "🖼 Screenshot",
}

// Label returns a description of a Weblate action name. When several keys
// of the label table occur in action, the longest one wins.
func Label(action string) string {
	action = strings.ToLower(action)
	var best string
	for key := range labels {
		if !strings.Contains(action, key) {
			continue
		}
		if len(key) > len(best) || (len(key) == len(best) && key < best) {
			best = key
		}
	}
	if best == "" {
		return DefaultLabel
	}
	return labels[best]
}
