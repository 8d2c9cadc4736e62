// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"text/tabwriter"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/cli"
	"go.astrophena.name/weblatebot/internal/config"
	"go.astrophena.name/weblatebot/internal/httplogger"
	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/notify"
	"go.astrophena.name/weblatebot/internal/request"
	"go.astrophena.name/weblatebot/internal/runner"
)

func main() { cli.Main(new(bot)) }

type bot struct {
	// configuration
	addr        string
	concurrency int
	configPath  string
	dry         bool
	envFile     string
	json        bool
	env         config.Env

	// httpc is used for all outgoing requests; nil means request.DefaultClient.
	httpc *http.Client

	projects []config.Project
	metrics  *runner.Metrics // set by serve
}

func (b *bot) Flags(fs *flag.FlagSet) {
	fs.StringVar(&b.addr, "addr", "", "Listen on `host:port` (serve command). Overrides $ADDR.")
	fs.IntVar(&b.concurrency, "concurrency", 1, "Process up to `N` projects at once.")
	fs.StringVar(&b.configPath, "config", "", "Load projects from `path` (.star, .yaml or .yml). Uses the built-in list when empty.")
	fs.BoolVar(&b.dry, "dry", false, "Enable dry-run mode: log messages, but don't send them.")
	fs.StringVar(&b.envFile, "env-file", "", "Read unset environment variables from the dotenv file at `path`.")
	fs.BoolVar(&b.json, "json", false, "Output in JSON format (honored in supported commands).")
}

func (b *bot) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	getenv := env.Getenv
	if b.envFile != "" {
		var err error
		getenv, err = config.WithEnvFile(b.envFile, getenv)
		if err != nil {
			return err
		}
	}
	b.env = config.FromEnv(getenv)
	b.addr = cmp.Or(b.addr, b.env.Addr)

	// Enable debug logging in dry-run mode.
	if b.dry {
		logger.Get(ctx).Level.Set(slog.LevelDebug)
		b.httpc = httplogger.Client(cmp.Or(b.httpc, request.DefaultClient), logger.Get(ctx).Logger, b.scrubber())
	}

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	command := env.Args[0]
	if len(env.Args) > 1 {
		return fmt.Errorf("%w: %s command takes no arguments", cli.ErrInvalidArgs, command)
	}

	switch command {
	case "run", "projects", "serve":
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}

	projects, err := config.Load(ctx, b.configPath)
	if err != nil {
		return err
	}
	b.projects = projects

	switch command {
	case "projects":
		return b.listProjects(env.Stdout)
	case "serve":
		return b.serve(ctx)
	default:
		return b.run(ctx, env.Stdout)
	}
}

func (b *bot) run(ctx context.Context, w io.Writer) error {
	if err := b.env.Check(); err != nil {
		return err
	}
	sum := b.newRunner().Run(ctx, b.projects)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func (b *bot) newRunner() *runner.Runner {
	return &runner.Runner{
		Sources: map[string]change.Source{
			config.SourceAPI: &change.APISource{
				BaseURL:    b.env.WeblateURL,
				APIKey:     b.env.APIKey,
				HTTPClient: b.httpc,
			},
			config.SourceFeed: &change.FeedSource{
				BaseURL:    b.env.WeblateURL,
				HTTPClient: b.httpc,
			},
		},
		Notifier:    b.newNotifier(),
		Location:    b.env.Location(),
		Concurrency: b.concurrency,
		Dry:         b.dry,
		Metrics:     b.metrics,
	}
}

func (b *bot) newNotifier() *notify.Notifier {
	return &notify.Notifier{
		Token:      b.env.TelegramToken,
		ChatID:     b.env.ChatID,
		APIURL:     b.env.TelegramAPI,
		HTTPClient: b.httpc,
		Retries:    notify.DefaultRetries,
	}
}

func (b *bot) listProjects(w io.Writer) error {
	if b.json {
		type projectJSON struct {
			config.Project
			Window   string `json:"window"`
			KeepRule bool   `json:"keep_rule,omitempty"`
		}
		var out []projectJSON
		for _, p := range b.projects {
			out = append(out, projectJSON{
				Project:  p,
				Window:   p.Window.String(),
				KeepRule: p.Keep != nil,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tSOURCE\tWINDOW\tMAX\tFALLBACK\tFILTERS")
	for _, p := range b.projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			p.Slug,
			strings.TrimSpace(p.Emoji+" "+p.DisplayName()),
			p.Source,
			p.Window,
			p.MaxNotify,
			p.Fallback,
			filters(p),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d project(s)\n", len(b.projects))
	return nil
}

// scrubber redacts configured secrets.
func (b *bot) scrubber() *strings.Replacer {
	var oldnew []string
	for _, secret := range []string{b.env.TelegramToken, b.env.APIKey, b.env.WebhookSecret} {
		if secret != "" {
			oldnew = append(oldnew, secret, "[EXPUNGED]")
		}
	}
	return strings.NewReplacer(oldnew...)
}

func filters(p config.Project) string {
	var parts []string
	if len(p.Languages) > 0 {
		parts = append(parts, "languages="+strings.Join(p.Languages, ","))
	}
	if len(p.Components) > 0 {
		parts = append(parts, "components="+strings.Join(p.Components, ","))
	}
	if p.Keep != nil {
		parts = append(parts, "keep_rule")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
