// Package catalog keeps named prompt templates loaded from disk or built in.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	hjson "github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

// ErrTemplateNotFound is returned by Get for unknown names.
var ErrTemplateNotFound = errors.New("catalog: template not found")

// Entry is a named template plus the metadata needed to run it.
type Entry struct {
	Name        string
	Description string
	Parser      string // output parser name, see output.ByName
	Template    *prompt.Template
	Source      string // file path, or "builtin"
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns a catalog holding the built-in templates.
func New() *Catalog {
	c := &Catalog{entries: make(map[string]*Entry)}
	for _, e := range builtins() {
		c.entries[e.Name] = e
	}
	return c
}

// Register adds or replaces a template.
func (c *Catalog) Register(e *Entry) error {
	if e == nil || e.Name == "" {
		return errors.New("catalog: entry name is required")
	}
	if e.Template == nil {
		return fmt.Errorf("catalog: entry %q has no template", e.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Name] = e
	return nil
}

// Get returns the named template or ErrTemplateNotFound.
func (c *Catalog) Get(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return e, nil
}

// List returns all entries sorted by name.
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadDir registers every .yaml, .yml and .hjson file in dir. A file without
// a name field is registered under its base name.
func (c *Catalog) LoadDir(dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("catalog: read dir: %w", err)
	}

	n := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".hjson" {
			continue
		}
		e, err := LoadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return n, err
		}
		if err := c.Register(e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// fileSpec is the on-disk template format.
type fileSpec struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Parser      string          `yaml:"parser" json:"parser"`
	Partials    prompt.Bindings `yaml:"partials" json:"partials"`
	Messages    []messageSpec   `yaml:"messages" json:"messages"`
}

type messageSpec struct {
	Role        string `yaml:"role" json:"role"`
	Content     string `yaml:"content" json:"content"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	Optional    bool   `yaml:"optional" json:"optional"`
}

// LoadFile parses one template file.
func LoadFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var spec fileSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hjson":
		err = hjson.Unmarshal(data, &spec)
	default:
		err = yaml.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	e, err := spec.entry()
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	e.Source = path
	return e, nil
}

func (s fileSpec) entry() (*Entry, error) {
	msgs := make([]prompt.MessageTemplate, 0, len(s.Messages))
	for i, m := range s.Messages {
		if m.Placeholder != "" {
			msgs = append(msgs, prompt.Placeholder(m.Placeholder, m.Optional))
			continue
		}
		role, err := llm.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, prompt.MessageTemplate{Role: role, Content: m.Content})
	}

	tmpl, err := prompt.New(msgs...)
	if err != nil {
		return nil, err
	}
	if len(s.Partials) > 0 {
		tmpl = tmpl.Partial(s.Partials)
	}
	return &Entry{Name: s.Name, Description: s.Description, Parser: s.Parser, Template: tmpl}, nil
}

func builtins() []*Entry {
	translate, _ := prompt.New(
		prompt.System("Translate the following from English into {language}"),
		prompt.User("{text}"),
	)
	chat, _ := prompt.New(
		prompt.System("You are a helpful assistant. Answer all questions to the best of your ability."),
		prompt.Placeholder("history", true),
		prompt.User("{input}"),
	)
	return []*Entry{
		{
			Name:        "translate",
			Description: "Translate text from English into another language",
			Parser:      "string",
			Template:    translate,
			Source:      "builtin",
		},
		{
			Name:        "chat",
			Description: "General assistant with conversation history",
			Parser:      "string",
			Template:    chat,
			Source:      "builtin",
		},
	}
}
