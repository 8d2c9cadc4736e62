// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/logger"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.yaml.in/yaml/v3"
)

//go:embed projects.star
var defaultConfig []byte

// Load reads the project list from path. Files ending in .yaml or .yml are
// parsed as YAML, anything else as Starlark. An empty path loads the built-in
// project list.
func Load(ctx context.Context, path string) ([]Project, error) {
	if path == "" {
		return Parse(ctx, "projects.star", defaultConfig)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, filepath.Base(path), b)
}

// Parse parses the project list stored in data. The format is chosen by the
// extension of name.
func Parse(ctx context.Context, name string, data []byte) ([]Project, error) {
	var (
		projects []Project
		err      error
	)
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		projects, err = parseYAML(data)
	default:
		projects, err = parseStarlark(ctx, name, data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("parsing %s: no projects defined", name)
	}

	seen := make(map[string]bool)
	for i := range projects {
		if err := projects[i].applyDefaults(); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		if seen[projects[i].Slug] {
			return nil, fmt.Errorf("parsing %s: project %q is defined twice", name, projects[i].Slug)
		}
		seen[projects[i].Slug] = true
	}
	return projects, nil
}

type yamlConfig struct {
	Projects []yamlProject `yaml:"projects"`
}

type yamlProject struct {
	Slug       string   `yaml:"slug"`
	Name       string   `yaml:"name"`
	Emoji      string   `yaml:"emoji"`
	Languages  []string `yaml:"languages"`
	Components []string `yaml:"components"`
	Window     string   `yaml:"window"`
	MaxNotify  int      `yaml:"max_notify"`
	Fallback   *bool    `yaml:"fallback"`
	Source     string   `yaml:"source"`
}

func parseYAML(data []byte) ([]Project, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg yamlConfig
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	projects := make([]Project, 0, len(cfg.Projects))
	for _, yp := range cfg.Projects {
		p := Project{
			Slug:       yp.Slug,
			Name:       yp.Name,
			Emoji:      yp.Emoji,
			Languages:  yp.Languages,
			Components: yp.Components,
			MaxNotify:  yp.MaxNotify,
			Fallback:   true,
			Source:     yp.Source,
		}
		if yp.Fallback != nil {
			p.Fallback = *yp.Fallback
		}
		if yp.Window != "" {
			d, err := time.ParseDuration(yp.Window)
			if err != nil {
				return nil, fmt.Errorf("project %q: %w", yp.Slug, err)
			}
			p.Window = d
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// projectValue is the Starlark value returned by the project builtin.
type projectValue struct {
	Project
	keepRule *starlark.Function
}

func (p *projectValue) String() string        { return fmt.Sprintf("<project slug=%q>", p.Slug) }
func (p *projectValue) Type() string          { return "project" }
func (p *projectValue) Freeze()               {} // immutable
func (p *projectValue) Truth() starlark.Bool  { return starlark.Bool(p.Slug != "") }
func (p *projectValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", p.Type()) }

func projectBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected positional arguments")
	}
	p := &projectValue{Project: Project{Fallback: true}}
	var (
		languages, components *starlark.List
		window                string
	)
	if err := starlark.UnpackArgs("project", args, kwargs,
		"slug", &p.Slug,
		"name?", &p.Name,
		"emoji?", &p.Emoji,
		"languages?", &languages,
		"components?", &components,
		"window?", &window,
		"max_notify?", &p.MaxNotify,
		"fallback?", &p.Fallback,
		"source?", &p.Source,
		"keep_rule?", &p.keepRule,
	); err != nil {
		return nil, err
	}

	var err error
	if p.Languages, err = stringList(languages); err != nil {
		return nil, fmt.Errorf("project: languages: %w", err)
	}
	if p.Components, err = stringList(components); err != nil {
		return nil, fmt.Errorf("project: components: %w", err)
	}
	if window != "" {
		if p.Window, err = time.ParseDuration(window); err != nil {
			return nil, fmt.Errorf("project: window: %w", err)
		}
	}
	return p, nil
}

func stringList(l *starlark.List) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	var out []string
	for i := range l.Len() {
		v := l.Index(i)
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("want string, got %s", v.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

func parseStarlark(ctx context.Context, name string, data []byte) ([]Project, error) {
	log := logger.Get(ctx)

	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { log.Info(msg) },
		},
		name,
		data,
		starlark.StringDict{
			"project": starlark.NewBuiltin("project", projectBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	list, ok := globals["projects"].(*starlark.List)
	if !ok {
		return nil, errors.New("projects must be defined and be a list")
	}

	var projects []Project
	for i := range list.Len() {
		elem := list.Index(i)
		pv, ok := elem.(*projectValue)
		if !ok {
			return nil, fmt.Errorf("projects must contain only project values, got %s", elem.Type())
		}
		p := pv.Project
		if pv.keepRule != nil {
			p.Keep = keepFunc(log, p.Slug, pv.keepRule)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// keepFunc adapts a Starlark keep rule to a record predicate. A rule that
// fails or returns a non-boolean value drops the record.
func keepFunc(log *logger.Logger, slug string, rule *starlark.Function) func(change.Record) bool {
	return func(rec change.Record) bool {
		ref := change.ParseRef(rec.ComponentRef)
		val, err := starlark.Call(
			&starlark.Thread{
				Print: func(_ *starlark.Thread, msg string) { log.Info(msg, "project", slug) },
			},
			rule,
			starlark.Tuple{starlarkstruct.FromStringDict(
				starlarkstruct.Default,
				starlark.StringDict{
					"id":        starlark.String(rec.ID),
					"action":    starlark.String(rec.ActionName),
					"target":    starlark.String(rec.TargetText),
					"timestamp": starlark.String(rec.Timestamp.Format(time.RFC3339)),
					"user":      starlark.String(change.UserName(rec.UserRef)),
					"component": starlark.String(ref.Component),
					"language":  starlark.String(change.Language(rec)),
					"url":       starlark.String(rec.DetailURL),
				},
			)},
			nil,
		)
		if err != nil {
			log.Warn("applying keep rule", "project", slug, "change_id", rec.ID, "error", err)
			return false
		}
		ret, ok := val.(starlark.Bool)
		if !ok {
			log.Warn("keep rule returned non-boolean value", "project", slug, "change_id", rec.ID)
			return false
		}
		return bool(ret)
	}
}
