package terminal

import (
	"context"
	"strings"

	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
)

// action tells the input loop what to do after a command.
type action int

const (
	actContinue action = iota // keep reading, nothing to submit
	actSubmit                 // submit the pending prompt as a turn
	actQuit                   // end the session
)

type command struct {
	token string
	help  string
	run   func(c *Controller, ctx context.Context) (action, error)
}

const multiToken = "/multi"

var (
	commands []command
	lookup   map[string]*command
)

func init() {
	commands = []command{
		{multiToken, "enter multiline mode, enter again to exit", (*Controller).multiline},
		{"/save", "save chat history", (*Controller).save},
		{"/image", "add an image attachment to the current prompt", urlAttachment("image url>> ", session.ImageRef)},
		{"/audio", "add an audio attachment to the current prompt", urlAttachment("audio url>> ", session.AudioRef)},
		{"/document", "add a document attachment to the current prompt", urlAttachment("document url>> ", session.DocumentRef)},
		{"/file", "add a file attachment to the current prompt", (*Controller).attachFile},
		{"/help", "this message", (*Controller).help},
		{"/quit", "quit (also Ctrl-D)", func(*Controller, context.Context) (action, error) { return actQuit, nil }},
	}
	lookup = make(map[string]*command, len(commands))
	for i := range commands {
		lookup[commands[i].token] = &commands[i]
	}
}

func (c *Controller) help(context.Context) (action, error) {
	for _, cmd := range commands {
		c.Out.Warn("%s - %s", cmd.token, cmd.help)
	}
	return actContinue, nil
}

// multiline collects lines until the toggle token. Other command tokens
// are refused so the only way out is the toggle itself.
func (c *Controller) multiline(context.Context) (action, error) {
	var lines []string
	for {
		line, err := c.In.ReadLine(". ")
		if err == ErrInterrupt {
			continue
		}
		if err != nil {
			return actContinue, err
		}
		if line == multiToken {
			break
		}
		if _, ok := lookup[line]; ok {
			c.Out.Warn("%s is not available in multiline mode, enter %s to exit", line, multiToken)
			continue
		}
		lines = append(lines, line)
	}
	c.pending = append(c.pending, session.Text(strings.Join(lines, "\n")))
	return actSubmit, nil
}

func urlAttachment(prompt string, part func(string) session.PromptPart) func(*Controller, context.Context) (action, error) {
	return func(c *Controller, _ context.Context) (action, error) {
		url, err := c.In.ReadLine(prompt)
		if err == ErrInterrupt {
			return actContinue, nil
		}
		if err != nil {
			return actContinue, err
		}
		c.pending = append(c.pending, part(url))
		return actContinue, nil
	}
}

func (c *Controller) attachFile(ctx context.Context) (action, error) {
	loc, err := c.In.ReadLine("file>> ")
	if err == ErrInterrupt {
		return actContinue, nil
	}
	if err != nil {
		return actContinue, err
	}
	if c.Resolver == nil {
		c.Out.Error("Attachments are not available")
		return actContinue, nil
	}
	part, err := c.Resolver.Resolve(ctx, loc)
	if err != nil {
		c.Out.Error("%s", errors.Truncate(err.Error(), errorWidth))
		return actContinue, nil
	}
	c.pending = append(c.pending, *part)
	return actContinue, nil
}

func (c *Controller) save(context.Context) (action, error) {
	path, err := c.In.ReadLine("json path>> ")
	if err == ErrInterrupt {
		return actContinue, nil
	}
	if err != nil {
		return actContinue, err
	}
	if path == "" {
		c.Out.Error("Enter a file path to save history to")
		return actContinue, nil
	}
	if err := session.Save(path, c.History); err != nil {
		c.Out.Error("Failed to save: %s", errors.Truncate(err.Error(), errorWidth))
		return actContinue, nil
	}
	c.Log.Info().Str("path", path).Int("messages", len(c.History)).Msg("history saved")
	return actContinue, nil
}
