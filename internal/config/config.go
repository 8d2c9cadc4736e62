// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads the environment and the list of watched projects.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
)

// Project defaults.
const (
	DefaultWindow    = 2 * time.Hour
	DefaultMaxNotify = 3
	DefaultSource    = SourceAPI
)

// Change sources a project can be polled from.
const (
	SourceAPI  = "api"
	SourceFeed = "feed"
)

// Project describes a watched Weblate project.
type Project struct {
	Slug       string        `json:"slug"`
	Name       string        `json:"name"`
	Emoji      string        `json:"emoji,omitempty"`
	Languages  []string      `json:"languages,omitempty"`
	Components []string      `json:"components,omitempty"`
	Window     time.Duration `json:"window"`
	MaxNotify  int           `json:"max_notify"`
	// Fallback enables notifying about the newest change when nothing is
	// recent.
	Fallback bool   `json:"fallback"`
	Source   string `json:"source"`
	// Keep is an optional predicate from the keep_rule of a Starlark config.
	Keep func(change.Record) bool `json:"-"`
}

// DisplayName returns the project name, or its slug if it has no name.
func (p Project) DisplayName() string { return cmp.Or(p.Name, p.Slug) }

// applyDefaults fills unset fields and validates p.
func (p *Project) applyDefaults() error {
	if p.Slug == "" {
		return fmt.Errorf("project %q has no slug", p.Name)
	}
	if p.Window == 0 {
		p.Window = DefaultWindow
	}
	if p.Window < 0 {
		return fmt.Errorf("project %q: window must be positive, got %v", p.Slug, p.Window)
	}
	if p.MaxNotify == 0 {
		p.MaxNotify = DefaultMaxNotify
	}
	if p.MaxNotify < 0 {
		return fmt.Errorf("project %q: max_notify must be positive, got %d", p.Slug, p.MaxNotify)
	}
	p.Source = cmp.Or(strings.ToLower(p.Source), DefaultSource)
	if p.Source != SourceAPI && p.Source != SourceFeed {
		return fmt.Errorf("project %q: unknown source %q", p.Slug, p.Source)
	}
	return nil
}

// Environment defaults.
const (
	DefaultWeblateURL  = "https://hosted.weblate.org"
	DefaultTelegramAPI = "https://api.telegram.org"
	DefaultAddr        = "localhost:3000"
)

// Env holds the settings read from environment variables.
type Env struct {
	TelegramToken string
	ChatID        string
	APIKey        string
	WebhookSecret string
	WeblateURL    string
	TelegramAPI   string
	TZName        string
	Addr          string
}

// FromEnv reads Env with getenv, filling defaults for unset variables.
func FromEnv(getenv func(string) string) Env {
	return Env{
		TelegramToken: strings.TrimSpace(getenv("TELEGRAM_TOKEN")),
		ChatID:        strings.TrimSpace(getenv("CHAT_ID")),
		APIKey:        strings.TrimSpace(getenv("WEBLATE_API_KEY")),
		WebhookSecret: getenv("WEBHOOK_SECRET"),
		WeblateURL:    cmp.Or(getenv("WEBLATE_URL"), DefaultWeblateURL),
		TelegramAPI:   cmp.Or(getenv("TELEGRAM_API"), DefaultTelegramAPI),
		TZName:        getenv("TZ_NAME"),
		Addr:          cmp.Or(getenv("ADDR"), DefaultAddr),
	}
}

// ErrMissing matches every [*MissingError] with [errors.Is].
var ErrMissing = errors.New("missing configuration")

// MissingError reports that a required secret is not configured.
type MissingError struct {
	HasToken  bool `json:"has_token"`
	HasChatID bool `json:"has_chat_id"`
}

func (e *MissingError) Error() string {
	var missing []string
	if !e.HasToken {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if !e.HasChatID {
		missing = append(missing, "CHAT_ID")
	}
	return "missing configuration: " + strings.Join(missing, ", ")
}

func (e *MissingError) Is(target error) bool { return target == ErrMissing }

// Check returns a [*MissingError] if the bot token or the chat ID is not set.
func (e Env) Check() error {
	if e.TelegramToken != "" && e.ChatID != "" {
		return nil
	}
	return &MissingError{HasToken: e.TelegramToken != "", HasChatID: e.ChatID != ""}
}

// Location returns the time zone used to display timestamps. Unknown or
// empty names yield UTC.
func (e Env) Location() *time.Location {
	if e.TZName == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.TZName)
	if err != nil {
		return time.UTC
	}
	return loc
}
