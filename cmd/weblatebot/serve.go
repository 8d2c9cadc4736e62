// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/runner"
	"go.astrophena.name/weblatebot/internal/systemd"
	"go.astrophena.name/weblatebot/internal/web"
	"go.astrophena.name/weblatebot/internal/webhook"
)

func (b *bot) serve(ctx context.Context) error {
	s := &web.Server{
		Addr: b.addr,
		Mux:  b.mux(),
		Ready: func(string) {
			systemd.Notify(ctx, systemd.Ready)
			go systemd.WatchdogLoop(ctx)
		},
	}
	defer systemd.Notify(ctx, systemd.Stopping)
	return s.ListenAndServe(ctx)
}

func (b *bot) mux() *http.ServeMux {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	b.metrics = runner.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/poll", web.AllowMethods(http.HandlerFunc(b.handlePoll), http.MethodGet, http.MethodPost))
	mux.Handle("/webhook", &webhook.Handler{
		Env:      b.env,
		Notifier: b.newNotifier(),
		Projects: b.projects,
		Location: b.env.Location(),
		Dry:      b.dry,
	})
	web.Health(mux).RegisterFunc("config", func() (status string, ok bool) {
		if err := b.env.Check(); err != nil {
			return err.Error(), false
		}
		return fmt.Sprintf("%d project(s) watched", len(b.projects)), true
	})
	return mux
}

// pollErrorResponse is written when a poll fails as a whole.
type pollErrorResponse struct {
	Error           string `json:"error"`
	Details         string `json:"details"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

func (b *bot) handlePoll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := b.env.Check(); err != nil {
		logger.Get(r.Context()).Error("poll", "error", err)
		webhook.RespondConfigError(w, err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Get(r.Context()).Error("poll panicked", "panic", rec)
			web.RespondJSONStatus(w, http.StatusInternalServerError, &pollErrorResponse{
				Error:           "Internal Server Error",
				Details:         fmt.Sprint(rec),
				ExecutionTimeMS: time.Since(start).Milliseconds(),
			})
		}
	}()

	sum := b.newRunner().Run(r.Context(), b.projects)
	web.RespondJSON(w, sum)
}
