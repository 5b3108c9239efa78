package screening

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Prompt names understood by the cache.
const (
	PromptGreeting = "greeting"
	PromptGoodbye  = "goodbye"
)

// DefaultPromptTexts are spoken by the silent strategy.
var DefaultPromptTexts = map[string]string{
	PromptGreeting: "Hello. The person you are calling is screening calls. Please state your name and the reason for your call after this message.",
	PromptGoodbye:  "Thank you. Your message has been recorded. Goodbye.",
}

// Renderer synthesizes text into a WAV stream.
type Renderer interface {
	Render(ctx context.Context, text string, w io.Writer) error
}

// PromptCache keeps rendered prompt files on disk and renders missing ones
// on first use.
type PromptCache struct {
	Dir      string
	Renderer Renderer
	Texts    map[string]string

	mu sync.Mutex
}

// NewPromptCache returns a cache rooted at dir using the default texts.
func NewPromptCache(dir string, r Renderer) *PromptCache {
	texts := make(map[string]string, len(DefaultPromptTexts))
	for k, v := range DefaultPromptTexts {
		texts[k] = v
	}
	return &PromptCache{Dir: dir, Renderer: r, Texts: texts}
}

// Names lists the prompts the cache knows about.
func (p *PromptCache) Names() []string {
	return []string{PromptGreeting, PromptGoodbye}
}

// File returns where the named prompt lives, without rendering it.
func (p *PromptCache) File(name string) string {
	return filepath.Join(p.Dir, name+".wav")
}

// Path returns the file for name, rendering it if it is missing.
func (p *PromptCache) Path(ctx context.Context, name string) (string, error) {
	path := p.File(name)
	if present(path) {
		return path, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if present(path) {
		return path, nil
	}
	if err := p.render(ctx, name, path); err != nil {
		return "", err
	}
	return path, nil
}

// Ensure renders every missing prompt.
func (p *PromptCache) Ensure(ctx context.Context) error {
	for _, name := range p.Names() {
		if _, err := p.Path(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Rerender replaces every prompt file with a fresh rendering.
func (p *PromptCache) Rerender(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range p.Names() {
		if err := p.render(ctx, name, p.File(name)); err != nil {
			return err
		}
	}
	return nil
}

func (p *PromptCache) render(ctx context.Context, name, path string) error {
	text, ok := p.Texts[name]
	if !ok {
		return fmt.Errorf("screening: unknown prompt %q", name)
	}
	if p.Renderer == nil {
		return fmt.Errorf("screening: prompt %q missing and no renderer configured", name)
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(p.Dir, name+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := p.Renderer.Render(ctx, text, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("render prompt %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	log.Printf("[screening] rendered prompt %s -> %s", name, path)
	return nil
}

func present(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir() && fi.Size() > 0
}
