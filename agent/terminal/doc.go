// Package terminal implements the interactive chat session.
//
// A Controller reads lines from a LineReader and classifies each one. A line
// that exactly equals a command token runs that command; any other line is
// prompt text and submits a turn. Attachment commands add parts to the
// pending prompt without submitting, so several attachments and a question
// can go to the model together.
//
// # Commands
//
//   - /multi: collect lines until /multi is entered again, then submit them
//     as one text part
//   - /image, /audio, /document: attach a URL by reference
//   - /file: attach the contents of a local file or a fetched URL
//   - /save: write the conversation to a JSON file
//   - /help: list commands
//   - /quit: end the session (Ctrl-D does the same)
//
// Every command is declared once in the commands table. The dispatcher, the
// help listing and the multiline guard all read from it.
//
// # Turns
//
// Each turn streams its text through a render.Renderer and prints one line
// per tool invocation. When a turn fails, the error is printed and the
// history stays as it was before the turn. Ctrl-C during a turn cancels that
// turn only.
package terminal
