package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/toolchat/agent"
	"github.com/m4xw311/toolchat/agent/terminal"
	"github.com/m4xw311/toolchat/attachment"
	"github.com/m4xw311/toolchat/config"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/llm"
	"github.com/m4xw311/toolchat/logging"
	"github.com/m4xw311/toolchat/render"
	"github.com/m4xw311/toolchat/session"
	"github.com/m4xw311/toolchat/tools"
	"github.com/m4xw311/toolchat/tools/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
	}
	os.Exit(exitCode(err))
}

// exitCode is 1 for configuration, connection and persistence failures and
// 2 for anything else that escapes the session.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Fatal(err):
		return 1
	default:
		return 2
	}
}

func errorMessage(err error) string {
	if kind := errors.KindOf(err); kind != errors.KindUnknown {
		return fmt.Sprintf("Error (%s): %+v", kind, err)
	}
	return fmt.Sprintf("Error: %+v", err)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "toolchat",
		Short:         "Chat with a model that can call MCP tools",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cmd.Flags(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringP("model", "m", "", "model, as provider:model or a bare model name")
	f.String("llm", "", "provider for bare model names (openai, anthropic, gemini, bedrock, echo)")
	f.StringP("dotenv", "e", ".env", "file of environment variables to load")
	f.String("tools", "", "MCP server config file (default ./tools.yml)")
	f.StringSlice("enable-tool-server", nil, "only connect the named servers (repeatable)")
	f.StringArrayP("system-prompt", "s", nil, "system prompt (repeatable)")
	f.Bool("markdown", true, "render replies as markdown")
	f.Bool("no-markdown", false, "print replies as plain text")
	f.String("history", "", "JSON history file to resume from")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-file", "", "write logs to this file instead of stderr")

	v.SetEnvPrefix("TOOLCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(f)

	return cmd
}

// loadConfig merges config files with flags and TOOLCHAT_* environment
// variables, which take precedence.
func loadConfig(v *viper.Viper, f *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if v.IsSet("llm") {
		cfg.LLMClient = v.GetString("llm")
	}
	if v.IsSet("model") {
		cfg.Model = v.GetString("model")
	}
	if v.IsSet("tools") {
		cfg.ToolsFile = v.GetString("tools")
	}
	if v.IsSet("enable-tool-server") {
		cfg.EnabledServers = v.GetStringSlice("enable-tool-server")
	}
	// Read the array directly; viper would split prompts on commas.
	if prompts, err := f.GetStringArray("system-prompt"); err == nil && len(prompts) > 0 {
		cfg.SystemPrompts = append(cfg.SystemPrompts, prompts...)
	}
	if v.IsSet("markdown") {
		md := v.GetBool("markdown")
		cfg.Markdown = &md
	}
	if v.GetBool("no-markdown") {
		md := false
		cfg.Markdown = &md
	}
	if v.IsSet("history") {
		cfg.HistoryFile = v.GetString("history")
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("log-file") {
		cfg.LogFile = v.GetString("log-file")
	}
	return cfg, nil
}

func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to load %s", path), errors.KindConfig)
	}
	return nil
}

func run(ctx context.Context, v *viper.Viper, f *pflag.FlagSet, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := loadDotenv(v.GetString("dotenv")); err != nil {
		return err
	}
	cfg, err := loadConfig(v, f)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Logger

	specs, err := tools.LoadSpecs(cfg.ToolsFile, cfg.EnabledServers, log)
	if err != nil {
		return err
	}
	toolSet, err := tools.Connect(ctx, specs, mcp.Dialer(log), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := toolSet.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close tool servers")
		}
	}()

	var history session.History
	if cfg.HistoryFile != "" {
		history, err = session.Load(cfg.HistoryFile)
		if err != nil {
			return err
		}
		log.Info().Str("path", cfg.HistoryFile).Int("messages", len(history)).Msg("history loaded")
	}

	provider, model := llm.ParseModel(cfg.Model, cfg.LLMClient)
	client, err := llm.New(ctx, provider, model, cfg.MaxTokens)
	if err != nil {
		return err
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}
	log.Debug().Str("provider", provider).Str("model", model).Int("tools", len(toolSet.Definitions())).Msg("session starting")

	reader, closeReader, err := lineReader(in, out)
	if err != nil {
		return err
	}
	defer closeReader()

	ctrl := &terminal.Controller{
		In:    reader,
		Out:   render.New(out, cfg.MarkdownEnabled()),
		Agent: &agent.Runner{Client: client, System: cfg.SystemPrompts, Log: log},
		Tools: toolSet,
		Resolver: &attachment.Resolver{
			Deny: cfg.Attachments.Deny,
			Log:  log,
		},
		History: history,
		Prompt:  cfg.Prompt,
		Log:     log,
	}
	_, err = ctrl.Run(ctx)
	return err
}

// lineReader uses line editing when in is a terminal and plain line
// scanning otherwise.
func lineReader(in io.Reader, out io.Writer) (terminal.LineReader, func(), error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		var historyFile string
		if home, err := os.UserHomeDir(); err == nil {
			dir := filepath.Join(home, ".toolchat")
			if err := os.MkdirAll(dir, 0755); err == nil {
				historyFile = filepath.Join(dir, "input_history")
			}
		}
		rl, err := terminal.NewReadlineReader(historyFile)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to open terminal")
		}
		return rl, func() { rl.Close() }, nil
	}
	return terminal.NewScannerReader(in, nil), func() {}, nil
}
