// Package prompt loads and renders the system prompts of channels, branches
// and workers.
//
// Defaults are embedded in the binary. A directory can override any of them
// with a file of the same name (for example channel.md).
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hupe1980/channelmesh/internal/util"
)

// Template names.
const (
	Identity = "identity"
	Channel  = "channel"
	Branch   = "branch"
	Worker   = "worker"
)

//go:embed templates/*.md
var defaults embed.FS

// Engine holds prompt templates.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*util.Template
}

// NewEngine loads the embedded defaults and applies overrides from dir. An
// empty dir uses the defaults only.
func NewEngine(dir string) (*Engine, error) {
	e := &Engine{templates: make(map[string]*util.Template)}

	entries, err := fs.ReadDir(defaults, "templates")
	if err != nil {
		return nil, fmt.Errorf("reading embedded templates: %w", err)
	}
	for _, entry := range entries {
		b, err := fs.ReadFile(defaults, "templates/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded template %s: %w", entry.Name(), err)
		}
		if err := e.Set(templateName(entry.Name()), string(b)); err != nil {
			return nil, err
		}
	}

	if dir == "" {
		return e, nil
	}

	overrides, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading prompt directory: %w", err)
	}
	for _, entry := range overrides {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading prompt %s: %w", entry.Name(), err)
		}
		if err := e.Set(templateName(entry.Name()), string(b)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func templateName(file string) string {
	return file[:len(file)-len(filepath.Ext(file))]
}

// Set compiles text and stores it under name, replacing any previous
// template. The engine is unchanged when text does not parse.
func (e *Engine) Set(name, text string) error {
	tmpl, err := util.ParseTemplate(name, text)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[name] = tmpl
	return nil
}

// Names returns the known template names, sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.templates))
	for n := range e.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownTemplate is returned by Render for names that were never loaded.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// Render executes the named template with data.
func (e *Engine) Render(name string, data map[string]any) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return tmpl.Render(data)
}
