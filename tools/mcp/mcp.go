// Package mcp connects to Model Context Protocol tool servers, either as a
// subprocess speaking over stdio or as a remote streamable HTTP endpoint.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// ClientName and ClientVersion identify this program during the handshake.
var (
	ClientName    = "toolchat"
	ClientVersion = "dev"
)

// Dialer returns a tools.Dialer that connects specs with the given logger.
func Dialer(log zerolog.Logger) tools.Dialer {
	return func(ctx context.Context, spec tools.Spec) (tools.Provider, error) {
		return Dial(ctx, spec, log)
	}
}

// Dial connects to the tool server described by spec.
func Dial(ctx context.Context, spec tools.Spec, log zerolog.Logger) (tools.Provider, error) {
	switch spec.Kind {
	case tools.KindStdio, "":
		return NewStdioProvider(ctx, spec, log)
	case tools.KindHTTP:
		return NewHTTPProvider(ctx, spec, nil, log)
	default:
		return nil, errors.New("unsupported tool server type '%s'", spec.Kind)
	}
}

// client holds the protocol session shared by both transports.
type client struct {
	name    string
	session *mcpsdk.ClientSession
	log     zerolog.Logger
}

func connect(ctx context.Context, name string, transport mcpsdk.Transport, log zerolog.Logger) (*client, error) {
	c := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: ClientVersion}, nil)
	session, err := c.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	return &client{name: name, session: session, log: log.With().Str("server", name).Logger()}, nil
}

func (c *client) Name() string { return c.name }

// ListTools fetches every page of the server's tool list.
func (c *client) ListTools(ctx context.Context) ([]tools.Definition, error) {
	var defs []tools.Definition
	params := &mcpsdk.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", c.name)
		}
		for _, t := range res.Tools {
			schema, err := schemaMap(t.InputSchema)
			if err != nil {
				return nil, errors.Wrapf(err, "tool '%s' has an unusable input schema", t.Name)
			}
			defs = append(defs, tools.Definition{
				Name:        t.Name,
				Description: t.Description,
				Schema:      schema,
				Provider:    c.name,
			})
		}
		if res.NextCursor == "" {
			break
		}
		params.Cursor = res.NextCursor
	}
	c.log.Debug().Int("tools", len(defs)).Msg("listed tools")
	return defs, nil
}

// Call runs a tool and flattens its content to text.
func (c *client) Call(ctx context.Context, tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", tool)
	}
	out := contentToString(res.Content)
	if res.IsError {
		return "", errors.New("tool '%s' failed: %s", tool, out)
	}
	return out, nil
}

func (c *client) close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// schemaMap converts whatever the SDK decoded for a schema into a plain
// JSON object.
func schemaMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{"type": "object"}
	}
	return m, nil
}

func contentToString(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			sb.WriteString(v.Text)
		case *mcpsdk.ImageContent:
			fmt.Fprintf(&sb, "[image %s, %d bytes]", v.MIMEType, len(v.Data))
		case *mcpsdk.AudioContent:
			fmt.Fprintf(&sb, "[audio %s, %d bytes]", v.MIMEType, len(v.Data))
		case *mcpsdk.ResourceLink:
			fmt.Fprintf(&sb, "[resource %s]", v.URI)
		case *mcpsdk.EmbeddedResource:
			if v.Resource != nil && v.Resource.Text != "" {
				sb.WriteString(v.Resource.Text)
			} else if v.Resource != nil {
				fmt.Fprintf(&sb, "[resource %s]", v.Resource.URI)
			}
		}
	}
	return sb.String()
}

// StdioProvider runs a tool server as a subprocess.
type StdioProvider struct {
	*client
	cmd *exec.Cmd
}

// NewStdioProvider starts the server process and performs the handshake.
func NewStdioProvider(ctx context.Context, spec tools.Spec, log zerolog.Logger) (*StdioProvider, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Stderr = os.Stderr
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+os.ExpandEnv(v))
		}
	}
	c, err := connect(ctx, spec.Name, &mcpsdk.CommandTransport{Command: cmd}, log)
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, err
	}
	c.log.Info().Str("command", spec.Command).Msg("started MCP server")
	return &StdioProvider{client: c, cmd: cmd}, nil
}

// Close ends the session, which terminates the subprocess.
func (p *StdioProvider) Close() error {
	p.log.Debug().Msg("terminating MCP server")
	return p.close()
}

// HTTPProvider talks to a remote tool server over streamable HTTP.
type HTTPProvider struct {
	*client
}

// NewHTTPProvider opens a session against spec.URL. Configured headers are
// added to every request; their values may reference environment
// variables. A nil httpClient uses http.DefaultTransport.
func NewHTTPProvider(ctx context.Context, spec tools.Spec, httpClient *http.Client, log zerolog.Logger) (*HTTPProvider, error) {
	base := http.DefaultTransport
	if httpClient != nil && httpClient.Transport != nil {
		base = httpClient.Transport
	}
	headers := make(map[string]string, len(spec.Headers))
	for k, v := range spec.Headers {
		headers[k] = os.ExpandEnv(v)
	}
	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:   spec.URL,
		HTTPClient: &http.Client{Transport: &headerTransport{base: base, headers: headers}},
	}
	c, err := connect(ctx, spec.Name, transport, log)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("url", spec.URL).Msg("connected to MCP server")
	return &HTTPProvider{client: c}, nil
}

func (p *HTTPProvider) Close() error { return p.close() }

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
