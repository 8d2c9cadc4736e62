// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package notify renders change records and delivers them to a Telegram chat.
package notify

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/request"

	"golang.org/x/time/rate"
)

// Delivery defaults.
const (
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
	DefaultTimeout    = 5 * time.Second
	DefaultPace       = 400 * time.Millisecond
	DefaultAPIURL     = "https://api.telegram.org"
)

// Notifier sends messages with the Telegram Bot API.
type Notifier struct {
	Token  string
	ChatID string
	// APIURL is the Bot API server URL. Defaults to DefaultAPIURL.
	APIURL     string
	HTTPClient *http.Client
	// Retries is the number of retries after a failed attempt.
	Retries int
	// RetryDelay is multiplied by the attempt number to get the wait before
	// the next attempt. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration
	// Timeout bounds a single attempt. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Pace is the minimum interval between messages sent by NotifyAll.
	// Defaults to DefaultPace; a negative value disables pacing.
	Pace time.Duration
	// EnableLinkPreview turns on link previews, which are disabled by default.
	EnableLinkPreview bool

	sleep func(context.Context, time.Duration) error // used in tests
}

// Outcome is the result of delivering one message.
type Outcome struct {
	Sent     bool
	Attempts int
	// Err is the error of the last attempt, if the message wasn't sent.
	Err error
}

// DeliveryError is returned when a message could not be delivered.
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Notify sends text, retrying failed attempts with a linear backoff. When
// Telegram rate limits the bot, the wait is extended to what it asks for.
func (n *Notifier) Notify(ctx context.Context, text string) Outcome {
	log := logger.Get(ctx)

	var out Outcome
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		err := n.send(ctx, text)
		if err == nil {
			return Outcome{Sent: true, Attempts: attempt}
		}
		out.Err = &DeliveryError{Attempts: attempt, Err: err}

		if attempt > n.Retries || ctx.Err() != nil {
			return out
		}

		wait := time.Duration(attempt) * cmp.Or(n.RetryDelay, DefaultRetryDelay)
		if ra, ok := retryAfter(err); ok && ra > wait {
			wait = ra
		}
		log.Warn("sending failed, retrying", "attempt", attempt, "wait", wait, "error", err)

		sleep := n.sleep
		if sleep == nil {
			sleep = sleepCtx
		}
		if err := sleep(ctx, wait); err != nil {
			return out
		}
	}
}

// NotifyAll sends texts in order, one at a time, keeping at least Pace
// between them. It returns an Outcome for every text.
func (n *Notifier) NotifyAll(ctx context.Context, texts []string) []Outcome {
	limit := rate.Inf
	if pace := cmp.Or(n.Pace, DefaultPace); pace > 0 {
		limit = rate.Every(pace)
	}
	lim := rate.NewLimiter(limit, 1)

	outcomes := make([]Outcome, len(texts))
	for i, text := range texts {
		if err := lim.Wait(ctx); err != nil {
			outcomes[i] = Outcome{Err: &DeliveryError{Err: err}}
			continue
		}
		outcomes[i] = n.Notify(ctx, text)
	}
	return outcomes
}

func (n *Notifier) send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(n.Timeout, DefaultTimeout))
	defer cancel()

	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    strings.TrimRight(cmp.Or(n.APIURL, DefaultAPIURL), "/") + "/bot" + n.Token + "/sendMessage",
		Body: &message{
			ChatID:                n.ChatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: !n.EnableLinkPreview,
		},
		HTTPClient: n.HTTPClient,
		Scrubber:   n.scrubber(),
	})
	return err
}

func (n *Notifier) scrubber() *strings.Replacer {
	if n.Token == "" {
		return nil
	}
	return strings.NewReplacer(n.Token, "[EXPUNGED]")
}

// retryAfter extracts the wait requested by a 429 response of the Bot API.
func retryAfter(err error) (time.Duration, bool) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return 0, false
	}
	return time.Duration(errorResponse.Parameters.RetryAfter) * time.Second, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
