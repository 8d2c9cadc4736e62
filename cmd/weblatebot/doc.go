// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Weblatebot watches translation projects on Weblate and posts their recent
changes to a Telegram chat.

# Usage

	$ weblatebot [flags...] <command>

Commands:

  - run: poll every project once, send notifications and print a JSON summary.
  - projects: list watched projects.
  - serve: start an HTTP server with poll and webhook endpoints.

Every run is stateless. It doesn't remember which changes were already
announced, so schedule it with an interval that matches the recency window of
the projects (two hours by default) using cron, a systemd timer or a platform
scheduler.

# Environment Variables

  - TELEGRAM_TOKEN: Telegram bot token for accessing the Telegram Bot API.
    Required.
  - CHAT_ID: Telegram chat ID where the program sends notifications. Required.
  - WEBLATE_API_KEY: Weblate API token. Optional, but anonymous requests are
    rate limited more strictly.
  - WEBHOOK_SECRET: shared secret of the webhook endpoint. Requests must pass
    it in the X-Webhook-Secret header or the secret query parameter. When
    empty, the webhook endpoint accepts any request.
  - WEBLATE_URL: Weblate instance URL. Defaults to "https://hosted.weblate.org".
  - TELEGRAM_API: Telegram Bot API server URL. Defaults to
    "https://api.telegram.org".
  - TZ_NAME: time zone of timestamps in messages, like "Europe/Berlin".
    Defaults to UTC.
  - ADDR: address the serve command listens on. Defaults to "localhost:3000".

Variables that are not set in the environment are also read from the dotenv
file passed with the -env-file flag.

# Configuration

Projects are listed in a Starlark file passed with the -config flag. For
example:

	projects = [
	    project(
	        slug = "demo",
	        name = "Demo App",
	        emoji = "📱",
	        languages = ["de", "pt_BR"],
	        window = "3h",
	        max_notify = 5,
	        keep_rule = lambda change: "Comment" not in change.action,
	    ),
	]

A project only requires a slug. Changes can be restricted to languages and to
components whose slug contains one of the given substrings. Records without a
recognizable language are always kept.

When no change falls into the recency window, the newest known change is sent
instead, marked as such. Set fallback = False to disable this.

A keep rule is a Starlark function that takes a change and returns a boolean.
The change is a struct with the following keys: id, action, target,
timestamp, user, component, language and url.

Changes are read from the Weblate API by default. Set source = "feed" to read
the RSS export of the project instead.

Files ending in .yaml or .yml are read as YAML with the same keys, except
keep_rule:

	projects:
	  - slug: demo
	    name: Demo App
	    window: 3h

Without -config, a built-in list is used.

# HTTP Endpoints

The serve command exposes:

  - /poll: performs a run and responds with its JSON summary.
  - /webhook: accepts Weblate webhook payloads with POST and forwards them to
    the chat.
  - /health: reports whether the bot is configured.
  - /metrics: exposes Prometheus metrics about runs.

When started by systemd, serve reports readiness and pings the watchdog if it
is enabled for the unit.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/weblatebot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
