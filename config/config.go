package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/toolchat/errors"
	"gopkg.in/yaml.v3"
)

type AttachmentAccess struct {
	// Deny lists doublestar patterns for local paths that may never be attached.
	Deny []string `yaml:"deny"`
}

type Config struct {
	LLMClient      string           `yaml:"llm"`
	Model          string           `yaml:"model"`
	MaxTokens      int64            `yaml:"max_tokens"`
	Markdown       *bool            `yaml:"markdown"`
	Prompt         string           `yaml:"prompt"`
	ToolsFile      string           `yaml:"tools_file"`
	EnabledServers []string         `yaml:"enabled_servers"`
	SystemPrompts  []string         `yaml:"system_prompts"`
	HistoryFile    string           `yaml:"history_file"`
	LogLevel       string           `yaml:"log_level"`
	LogFile        string           `yaml:"log_file"`
	Attachments    AttachmentAccess `yaml:"attachments"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	markdown := true
	return &Config{
		LLMClient: "openai",
		Model:     "gpt-4o-mini",
		MaxTokens: 4096,
		Markdown:  &markdown,
		Prompt:    "> ",
		ToolsFile: "./tools.yml",
		LogLevel:  "warn",
		Attachments: AttachmentAccess{
			Deny: []string{".env", "**/.env"},
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".toolchat", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "error loading user config"), errors.KindConfig)
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".toolchat", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "error loading project config"), errors.KindConfig)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML overwrite earlier values; project-level
	// config therefore replaces user-level config field by field.
	return yaml.Unmarshal(data, cfg)
}

// MarkdownEnabled reports whether responses should be rendered as markdown.
func (c *Config) MarkdownEnabled() bool {
	return c.Markdown == nil || *c.Markdown
}
