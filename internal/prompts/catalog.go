package prompts

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const inputPlaceholder = "{{input}}"

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Catalog struct {
	Prompts []Prompt `yaml:"prompts"`
}

type Prompt struct {
	Name   string `yaml:"name"`
	System string `yaml:"system"`
	// Template may contain {{input}}, replaced by the caller's input text.
	Template       string `yaml:"template"`
	BaselineTokens int    `yaml:"baseline_tokens"`
	Format         Format `yaml:"format"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalog yaml: %w", err)
	}
	seen := make(map[string]bool, len(c.Prompts))
	for i := range c.Prompts {
		p := &c.Prompts[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("prompt %d: name is required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("prompt %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.Template) == "" {
			return nil, fmt.Errorf("prompt %q: template is required", p.Name)
		}
		if p.BaselineTokens < 0 {
			return nil, fmt.Errorf("prompt %q: baseline_tokens must be >= 0", p.Name)
		}
		switch p.Format {
		case "":
			p.Format = FormatText
		case FormatText, FormatJSON:
		default:
			return nil, fmt.Errorf("prompt %q: format must be 'text' or 'json', got %q", p.Name, p.Format)
		}
	}
	return &c, nil
}

// CheckCap rejects prompts whose configured baseline is above the
// escalation cap.
func (c *Catalog) CheckCap(tokenCap int) error {
	for _, p := range c.Prompts {
		if p.BaselineTokens > tokenCap {
			return fmt.Errorf("prompt %q: baseline_tokens %d exceeds escalation_token_cap %d", p.Name, p.BaselineTokens, tokenCap)
		}
	}
	return nil
}

func (c *Catalog) Get(name string) (Prompt, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.Prompts {
		if p.Name == name {
			return p, true
		}
	}
	return Prompt{}, false
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Prompts))
	for _, p := range c.Prompts {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Render fills the template with input. A template without the placeholder
// gets the input appended after a blank line.
func (p Prompt) Render(input string) string {
	input = strings.TrimSpace(input)
	if strings.Contains(p.Template, inputPlaceholder) {
		return strings.ReplaceAll(p.Template, inputPlaceholder, input)
	}
	if input == "" {
		return p.Template
	}
	return strings.TrimRight(p.Template, "\n") + "\n\n" + input
}

// Baseline returns the prompt's configured starting budget or fallback.
func (p Prompt) Baseline(fallback int) int {
	if p.BaselineTokens > 0 {
		return p.BaselineTokens
	}
	return fallback
}
