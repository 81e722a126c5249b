package netio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
)

// Format is a document encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath returns the format implied by the extension of path.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidFormat, "unknown network format for %s (want .json, .yaml or .yml)", path)
	}
}

// Decode parses a document from r without building a tree.
// Unknown fields are rejected so typos in hand-written networks surface.
func Decode(r io.Reader, f Format) (*Document, error) {
	var doc Document
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode")
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown format %q", f)
	}
	return &doc, nil
}

// Read decodes a network from r and builds its tree.
//
// Read returns an error if the input is malformed, a component has an
// unknown type or the wrong number of ports, an ID is used twice, or an
// upstream reference names an unknown component or port. Errors are
// wrapped with the ID of the component that caused them.
//
// Port flows and pressures in the input are ignored. Read does not close r.
func Read(r io.Reader, f Format) (*fitting.Tree, error) {
	doc, err := Decode(r, f)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// Import reads the network file at path. The format follows the extension.
func Import(path string) (*fitting.Tree, error) {
	t, _, err := ImportBytes(path)
	return t, err
}

// ImportBytes is like [Import] and also returns the raw file contents,
// which callers use as a content hash for caching.
func ImportBytes(path string) (*fitting.Tree, []byte, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	t, err := Read(bytes.NewReader(data), f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, data, nil
}
