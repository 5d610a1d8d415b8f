// Package agent runs one conversational turn against a model.
//
// A turn starts from a user prompt and the prior conversation, streams the
// model's reply, executes any tool calls it requests through a ToolCaller,
// and feeds the results back until the model answers without tools.
//
// # Streams
//
// Runner.Start returns a Turn immediately. The caller consumes two streams:
//
//   - Text: reply text deltas, in order, across every model step
//   - ToolCalls: one ToolEvent per tool invocation, sent before the call runs
//
// A single goroutine produces both on unbuffered channels, so the order in
// which a consumer receives text and tool events is the order in which they
// happened. Both channels are closed before Wait returns.
//
// # History
//
// Wait returns the complete message log: the history passed in, the new user
// message, and every assistant and tool message of the turn. The input
// history is never modified; on error Wait returns nil and the caller keeps
// what it had.
//
// # Subpackages
//
// agent/terminal: the interactive session controller that reads prompts,
// handles slash commands and renders each turn.
package agent
