package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"maps"
	"slices"
	"strings"
	texttemplate "text/template"

	"github.com/a-h/templ"
	"gopkg.in/yaml.v3"
)

// Renderer turns a template id and variables into an email body.
type Renderer interface {
	Render(ctx context.Context, id string, vars map[string]any) (*Rendered, error)
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type entry struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type rawEntry struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

// Catalog is an immutable set of parsed templates.
type Catalog struct {
	entries map[string]entry
}

// ParseCatalog parses YAML mapping template ids to entries.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]rawEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	c := &Catalog{entries: make(map[string]entry, len(raw))}
	for id, r := range raw {
		if strings.TrimSpace(r.Subject) == "" {
			return nil, fmt.Errorf("%w: %s: subject is required", ErrInvalidCatalog, id)
		}
		if r.Text == "" && r.HTML == "" {
			return nil, fmt.Errorf("%w: %s: text or html is required", ErrInvalidCatalog, id)
		}

		var (
			e   entry
			err error
		)
		if e.subject, err = texttemplate.New(id + ".subject").Option("missingkey=zero").Parse(r.Subject); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, id, err)
		}
		if r.Text != "" {
			if e.text, err = texttemplate.New(id + ".text").Option("missingkey=zero").Parse(r.Text); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, id, err)
			}
		}
		if r.HTML != "" {
			if e.html, err = htmltemplate.New(id + ".html").Option("missingkey=zero").Parse(r.HTML); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, id, err)
			}
		}
		c.entries[id] = e
	}
	return c, nil
}

// LoadCatalog reads and parses every *.yaml and *.yml file under dir in fsys.
// Later files override earlier ids.
func LoadCatalog(fsys fs.FS, dir string) (*Catalog, error) {
	merged := &Catalog{entries: map[string]entry{}}
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !(strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		c, err := ParseCatalog(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		maps.Copy(merged.entries, c.entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// IDs returns the sorted template ids.
func (c *Catalog) IDs() []string {
	return slices.Sorted(maps.Keys(c.entries))
}

func (c *Catalog) Render(ctx context.Context, id string, vars map[string]any) (*Rendered, error) {
	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	subject, err := execText(e.subject, vars)
	if err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}
	out := &Rendered{Subject: strings.TrimSpace(subject)}

	if e.text != nil {
		if out.Text, err = execText(e.text, vars); err != nil {
			return nil, errors.Join(ErrRenderFailed, err)
		}
	}

	var body templ.Component
	if e.html != nil {
		var buf bytes.Buffer
		if err := e.html.Execute(&buf, vars); err != nil {
			return nil, errors.Join(ErrRenderFailed, err)
		}
		body = templ.Raw(buf.String())
	} else {
		body = Paragraphs(out.Text)
	}

	if out.HTML, err = renderComponent(ctx, Layout(out.Subject, body)); err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}
	return out, nil
}

// Plain builds an email from a bare subject and message, used when no
// template is referenced or rendering fails.
func Plain(ctx context.Context, subject, message string) (*Rendered, error) {
	html, err := renderComponent(ctx, Layout(subject, Paragraphs(message)))
	if err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}
	return &Rendered{Subject: subject, HTML: html, Text: message}, nil
}

func execText(t *texttemplate.Template, vars map[string]any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, vars); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func renderComponent(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
