// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package webhook forwards change notifications pushed by Weblate to a
// Telegram chat.
package webhook

import (
	"bytes"
	"cmp"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/config"
	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/notify"
	"go.astrophena.name/weblatebot/internal/web"
)

// SecretHeader carries the shared secret of a webhook request. The secret
// can also be passed in the "secret" query parameter.
const SecretHeader = "X-Webhook-Secret"

const maxPayloadSize = 1 << 20 // 1 MiB

// Payload is the body of a Weblate webhook request.
type Payload struct {
	ChangeID    Text   `json:"change_id"`
	Action      Text   `json:"action"`
	Timestamp   string `json:"timestamp"`
	URL         string `json:"url"`
	Author      Text   `json:"author"`
	User        Text   `json:"user"`
	Project     string `json:"project"`
	Component   string `json:"component"`
	Translation string `json:"translation"`
	Target      Text   `json:"target"`
}

// Text is a string that also accepts numbers and lists of strings, which
// Weblate sends for plural forms.
type Text string

// UnmarshalJSON implements the [json.Unmarshaler] interface.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '[':
		var list []Text
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		parts := make([]string, 0, len(list))
		for _, s := range list {
			if s != "" {
				parts = append(parts, string(s))
			}
		}
		*t = Text(strings.Join(parts, " / "))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("want string, number or list, got %s", b)
		}
		*t = Text(n.String())
	}
	return nil
}

// Record converts p to a change record.
func (p *Payload) Record() change.Record {
	rec := change.Record{
		ID:         string(p.ChangeID),
		ActionName: string(p.Action),
		TargetText: string(p.Target),
		UserRef:    string(p.User),
		DetailURL:  p.URL,
	}
	if rec.UserRef == "" {
		rec.UserRef = string(p.Author)
	}
	if p.Project != "" {
		rec.ComponentRef = "/projects/" + p.Project + "/" + p.Component + "/"
		if p.Translation != "" {
			rec.TranslationRef = rec.ComponentRef + p.Translation + "/"
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		rec.Timestamp = t.UTC()
	}
	return rec
}

// Response is the body of a successful webhook response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConfigErrorResponse is the body of a response to a request that can't be
// served because a required secret is missing.
type ConfigErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	HasToken  bool   `json:"has_token"`
	HasChatID bool   `json:"has_chat_id"`
}

// RespondConfigError writes a [ConfigErrorResponse] with status 500 if err
// is a [*config.MissingError], and reports whether it did.
func RespondConfigError(w http.ResponseWriter, err error) bool {
	var me *config.MissingError
	if !errors.As(err, &me) {
		return false
	}
	web.RespondJSONStatus(w, http.StatusInternalServerError, &ConfigErrorResponse{
		Error:     "Missing configuration",
		Details:   me.Error(),
		HasToken:  me.HasToken,
		HasChatID: me.HasChatID,
	})
	return true
}

// Handler serves webhook requests.
type Handler struct {
	Env      config.Env
	Notifier *notify.Notifier
	// Projects supply display names and emojis of known projects.
	Projects []config.Project
	Location *time.Location
	// Dry logs messages instead of sending them.
	Dry bool
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		web.RespondJSONError(w, r, fmt.Errorf("%s is not allowed: %w", r.Method, web.ErrMethodNotAllowed))
		return
	}
	if !h.authorized(r) {
		web.RespondJSONError(w, r, fmt.Errorf("invalid webhook secret: %w", web.ErrForbidden))
		return
	}
	if err := h.Env.Check(); err != nil {
		logger.Get(r.Context()).Error("webhook", "error", err)
		RespondConfigError(w, err)
		return
	}

	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("reading payload: %v: %w", err, web.ErrBadRequest))
		return
	}
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("invalid payload: %v: %w", err, web.ErrBadRequest))
		return
	}

	rec := p.Record()
	text := notify.Render(rec, h.project(p.Project), false, 0, h.Location)
	log := logger.Get(r.Context()).With("project", p.Project, "change_id", rec.ID)

	if h.Dry {
		log.Info("would send message", "message", text)
		web.RespondJSON(w, &Response{Success: true, Message: "Notification rendered (dry run)"})
		return
	}

	out := h.Notifier.Notify(r.Context(), text)
	if !out.Sent {
		log.Error("webhook delivery failed", "attempts", out.Attempts, "error", out.Err)
		web.RespondJSONStatus(w, http.StatusInternalServerError, &web.ErrorResponse{
			Error:   "Failed to send notification",
			Details: out.Err.Error(),
		})
		return
	}
	log.Info("webhook forwarded", "attempts", out.Attempts)
	web.RespondJSON(w, &Response{Success: true, Message: "Notification sent"})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.Env.WebhookSecret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Env.WebhookSecret)) == 1
}

func (h *Handler) project(slug string) config.Project {
	for _, p := range h.Projects {
		if p.Slug == slug {
			return p
		}
	}
	return config.Project{Slug: cmp.Or(slug, "Weblate")}
}
