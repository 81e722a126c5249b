package netio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
)

// Write encodes t to w in format f. Known port flows and pressures are
// included, so a solved tree round-trips its results.
func Write(t *fitting.Tree, w io.Writer, f Format) error {
	doc, err := FromTree(t)
	if err != nil {
		return err
	}
	return Encode(doc, w, f)
}

// Encode writes doc to w in format f.
func Encode(doc *Document, w io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.New(errors.ErrCodeInvalidFormat, "unknown format %q", f)
	}
}

// Export writes t to the file at path. The format follows the extension.
func Export(t *fitting.Tree, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(t, f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
