package ai

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.prompt
var promptFS embed.FS

// PromptConfig holds metadata from the YAML frontmatter.
type PromptConfig struct {
	Model       string         `yaml:"model"`
	Temperature float32        `yaml:"temperature"`
	Input       map[string]any `yaml:"input"`
}

// Prompt represents a loaded prompt with config and template.
type Prompt struct {
	Config   PromptConfig
	Template *template.Template
}

// ParsePrompt splits a prompt document into frontmatter and template body.
func ParsePrompt(name string, data []byte) (*Prompt, error) {
	parts := strings.SplitN(string(data), "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid prompt format: missing frontmatter delimiters")
	}

	var config PromptConfig
	if err := yaml.Unmarshal([]byte(parts[1]), &config); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	tmpl, err := template.New(name).Parse(strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template body: %w", err)
	}

	return &Prompt{Config: config, Template: tmpl}, nil
}

// LoadPrompt reads an embedded prompt by name, without extension.
func LoadPrompt(name string) (*Prompt, error) {
	data, err := promptFS.ReadFile("prompts/" + name + ".prompt")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return ParsePrompt(name, data)
}

// Execute applies data to the template and returns the result string.
func (p *Prompt) Execute(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.Template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
