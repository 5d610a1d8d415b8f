package tools

import (
	"os"
	"slices"

	"github.com/m4xw311/toolchat/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ServerKind selects the transport used to reach a tool server.
type ServerKind string

const (
	KindStdio ServerKind = "stdio"
	KindHTTP  ServerKind = "http"
)

// Spec declares one tool server. It is immutable once loaded.
type Spec struct {
	Name string
	Kind ServerKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// http
	URL     string
	Headers map[string]string
}

type rawServer struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

type rawEntry struct {
	Name   string     `yaml:"name"`
	Type   string     `yaml:"type"`
	Server *rawServer `yaml:"server"`
}

// LoadSpecs reads tool server declarations from a YAML file.
//
// The canonical shape is a mapping under "mcpServers" from server name to
// {type, server}; the key may be omitted, and a sequence of entries that
// carry their own "name" is accepted too. Entries keep file order.
//
// A missing path or file yields no servers. When enabled is non-empty only
// the named servers are returned.
func LoadSpecs(path string, enabled []string, log zerolog.Logger) ([]Spec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("no tool server config")
			return nil, nil
		}
		return nil, errors.Mark(errors.Wrapf(err, "could not read tool config %s", path), errors.KindConfig)
	}
	specs, err := ParseSpecs(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid tool config %s", path), errors.KindConfig)
	}
	if len(enabled) == 0 {
		return specs, nil
	}

	var selected []Spec
	for _, s := range specs {
		if slices.Contains(enabled, s.Name) {
			selected = append(selected, s)
		}
	}
	for _, name := range enabled {
		if !slices.ContainsFunc(specs, func(s Spec) bool { return s.Name == name }) {
			log.Warn().Str("server", name).Msg("enabled tool server is not declared")
		}
	}
	return selected, nil
}

// ParseSpecs parses the YAML tool server document.
func ParseSpecs(data []byte) ([]Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		if servers := mappingValue(root, "mcpServers"); servers != nil {
			root = servers
		}
	}

	var specs []Spec
	switch root.Kind {
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil, nil
		}
		return nil, errors.New("expected a mapping or sequence of tool servers")
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			var entry rawEntry
			if err := root.Content[i+1].Decode(&entry); err != nil {
				return nil, errors.Wrapf(err, "tool server '%s'", root.Content[i].Value)
			}
			entry.Name = root.Content[i].Value
			s, err := entry.spec()
			if err != nil {
				return nil, err
			}
			specs = append(specs, s)
		}
	case yaml.SequenceNode:
		for i, n := range root.Content {
			var entry rawEntry
			if err := n.Decode(&entry); err != nil {
				return nil, errors.Wrapf(err, "tool server #%d", i)
			}
			if entry.Name == "" {
				return nil, errors.New("tool server #%d has no name", i)
			}
			s, err := entry.spec()
			if err != nil {
				return nil, err
			}
			specs = append(specs, s)
		}
	default:
		return nil, errors.New("expected a mapping or sequence of tool servers")
	}

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return nil, errors.New("duplicate tool server name '%s'", s.Name)
		}
		seen[s.Name] = true
	}
	return specs, nil
}

func (e rawEntry) spec() (Spec, error) {
	if e.Server == nil {
		return Spec{}, errors.New("tool server '%s' has no server block", e.Name)
	}
	kind := ServerKind(e.Type)
	if kind == "" {
		kind = KindStdio
	}
	s := Spec{Name: e.Name, Kind: kind}
	switch kind {
	case KindStdio:
		if e.Server.Command == "" {
			return Spec{}, errors.New("stdio tool server '%s' has no command", e.Name)
		}
		s.Command, s.Args, s.Env = e.Server.Command, e.Server.Args, e.Server.Env
	case KindHTTP:
		if e.Server.URL == "" {
			return Spec{}, errors.New("http tool server '%s' has no url", e.Name)
		}
		s.URL, s.Headers = e.Server.URL, e.Server.Headers
	default:
		return Spec{}, errors.New("invalid tool server type '%s' for '%s'", e.Type, e.Name)
	}
	return s, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
