// Package storage reads and writes JSON documents by location. Local
// filesystem paths are fully supported; remote URIs (s3://, https://, ...)
// support path arithmetic only.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var schemeRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// Path is a file location, either a local path or a remote URI.
type Path string

// IsRemote reports whether the path carries a URI scheme.
func (p Path) IsRemote() bool {
	return schemeRegex.MatchString(string(p))
}

// IsAbsolute reports whether the path needs no resolution against a base.
func (p Path) IsAbsolute() bool {
	return p.IsRemote() || filepath.IsAbs(string(p))
}

// Absolute resolves the path against the working directory. Remote URIs are
// absolute by definition and returned unchanged.
func (p Path) Absolute() (Path, error) {
	if p.IsRemote() {
		return p, nil
	}
	abs, err := filepath.Abs(string(p))
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path of %q: %w", p, err)
	}
	return Path(abs), nil
}

// Parent returns the containing directory.
func (p Path) Parent() Path {
	if p.IsRemote() {
		scheme, rest, _ := strings.Cut(string(p), "://")
		return Path(scheme + "://" + path.Dir(rest))
	}
	return Path(filepath.Dir(string(p)))
}

// Join appends path elements, keeping remote URI separators intact.
func (p Path) Join(elements ...string) Path {
	if p.IsRemote() {
		joined := strings.TrimRight(string(p), "/")
		for _, element := range elements {
			joined += "/" + strings.Trim(element, "/")
		}
		return Path(joined)
	}
	return Path(filepath.Join(append([]string{string(p)}, elements...)...))
}

func (p Path) String() string {
	return string(p)
}

// Exists reports whether the location exists. Remote locations are not
// checked and report false.
func (p Path) Exists() bool {
	if p.IsRemote() {
		return false
	}
	_, err := os.Stat(string(p))
	return err == nil
}

// ReadJSON reads and decodes the JSON document at the location.
func (p Path) ReadJSON(v any) error {
	if p.IsRemote() {
		return fmt.Errorf("reading remote location %q is not supported", p)
	}
	data, err := os.ReadFile(string(p))
	if err != nil {
		return fmt.Errorf("cannot read %q: %w", p, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cannot decode JSON from %q: %w", p, err)
	}
	return nil
}

// WriteJSON writes the document as indented JSON, creating parent
// directories as needed.
func (p Path) WriteJSON(v any, indent int) error {
	if p.IsRemote() {
		return fmt.Errorf("writing remote location %q is not supported", p)
	}
	data, err := json.MarshalIndent(v, "", strings.Repeat(" ", indent))
	if err != nil {
		return fmt.Errorf("cannot encode JSON for %q: %w", p, err)
	}
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return fmt.Errorf("cannot create parent directory of %q: %w", p, err)
	}
	if err := os.WriteFile(string(p), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("cannot write %q: %w", p, err)
	}
	return nil
}
