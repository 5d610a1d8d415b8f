package terminal

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/m4xw311/toolchat/agent"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/render"
	"github.com/m4xw311/toolchat/session"
	"github.com/rs/zerolog"
)

// errorWidth bounds how much of an error message is printed.
const errorWidth = 500

// Starter starts a turn. *agent.Runner satisfies it.
type Starter interface {
	Start(ctx context.Context, req agent.TurnRequest) *agent.Turn
}

// Resolver turns a /file location into a prompt part.
type Resolver interface {
	Resolve(ctx context.Context, location string) (*session.PromptPart, error)
}

// Controller runs the interactive session.
type Controller struct {
	In       LineReader
	Out      render.Renderer
	Agent    Starter
	Tools    agent.ToolCaller
	Resolver Resolver
	History  session.History
	Prompt   string
	Log      zerolog.Logger

	pending []session.PromptPart
}

// Run reads input until /quit or end of input and returns the final history.
func (c *Controller) Run(ctx context.Context) (session.History, error) {
	prompt := c.Prompt
	if prompt == "" {
		prompt = "> "
	}

	c.Out.Info("ToolChat - Ctrl-D or /quit to quit")
	c.Out.Info("Enter %s to enter and exit multiline mode, /help for more commands", multiToken)

	for {
		if err := ctx.Err(); err != nil {
			return c.History, err
		}
		line, err := c.In.ReadLine(prompt)
		if err == ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return c.History, nil
		}
		if err != nil {
			return c.History, errors.Wrapf(err, "failed to read input")
		}

		act := actSubmit
		if cmd, ok := lookup[line]; ok {
			act, err = cmd.run(c, ctx)
			if err == io.EOF {
				return c.History, nil
			}
			if err != nil {
				return c.History, errors.Wrapf(err, "failed to read input")
			}
		} else {
			c.pending = append(c.pending, session.Text(line))
		}

		switch act {
		case actQuit:
			return c.History, nil
		case actSubmit:
			c.submit(ctx)
		}
	}
}

// submit runs one turn with the pending prompt. The prompt is cleared
// whether or not the turn succeeds.
func (c *Controller) submit(ctx context.Context) {
	parts := c.pending
	c.pending = nil

	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	turn := c.Agent.Start(turnCtx, agent.TurnRequest{Prompt: parts, History: c.History, Tools: c.Tools})
	render.Drain(c.Out, turn.Text(), turn.ToolCalls())

	h, err := turn.Wait()
	if err != nil {
		c.Log.Debug().Err(err).Msg("turn failed")
		c.Out.Error("Error: %s", errors.Truncate(err.Error(), errorWidth))
		return
	}
	c.History = h
}
