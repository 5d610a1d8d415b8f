// Package attachment turns a user-supplied path or URL into binary prompt
// content.
package attachment

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/toolchat/errors"
	"github.com/m4xw311/toolchat/session"
	"github.com/rs/zerolog"
)

const defaultMediaType = "application/octet-stream"

// Resolver fetches attachments. The zero value is usable.
type Resolver struct {
	Client *http.Client
	// Deny holds doublestar patterns; matching local paths are refused.
	Deny []string
	Log  zerolog.Logger
}

// Resolve reads location. Strings without "://" are local file paths,
// anything else is fetched with a single GET.
func (r *Resolver) Resolve(ctx context.Context, location string) (*session.PromptPart, error) {
	var (
		part *session.PromptPart
		err  error
	)
	if !strings.Contains(location, "://") {
		part, err = r.readFile(location)
	} else {
		part, err = r.fetch(ctx, location)
	}
	if err != nil {
		return nil, errors.Mark(err, errors.KindAttachment)
	}
	r.Log.Debug().Str("location", location).Str("media_type", part.MediaType).Int("bytes", len(part.Data)).Msg("attachment resolved")
	return part, nil
}

func (r *Resolver) readFile(path string) (*session.PromptPart, error) {
	denied, err := isPathRestricted(path, r.Deny)
	if err != nil {
		return nil, err
	}
	if denied {
		return nil, errors.New("access denied: path '%s' may not be attached", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}
	part := session.Binary(data, MediaTypeOf(path))
	return &part, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) (*session.PromptPart, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid url '%s'", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch '%s'", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New("failed to fetch '%s': %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read body of '%s'", url)
	}
	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	part := session.Binary(data, mediaType)
	return &part, nil
}

// MediaTypeOf guesses a media type from the file name's extension.
func MediaTypeOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultMediaType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultMediaType
}

// isPathRestricted checks if a path, or its base name, matches any of the
// glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	clean := filepath.ToSlash(filepath.Clean(path))
	base := filepath.Base(clean)
	for _, pattern := range patterns {
		for _, candidate := range []string{clean, base} {
			match, err := doublestar.Match(pattern, candidate)
			if err != nil {
				return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
			}
			if match {
				return true, nil
			}
		}
	}
	return false, nil
}
