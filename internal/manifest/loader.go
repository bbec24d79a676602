package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/willibrandon/copgy/internal/errkind"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a manifest document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// documentSchema describes the manifest document: an array of steps, each
// with optional copy and execute objects. Optional members may be null.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "additionalProperties": false,
    "properties": {
      "copy": {
        "type": ["object", "null"],
        "additionalProperties": false,
        "required": ["source_sql", "dest_table"],
        "properties": {
          "source_sql": {"type": "string", "minLength": 1},
          "dest_table": {"type": "string", "minLength": 1}
        }
      },
      "execute": {
        "type": ["object", "null"],
        "additionalProperties": false,
        "properties": {
          "source_sql": {"type": ["string", "null"]},
          "dest_sql": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ReadError reports a manifest file that could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read manifest %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Kind implements errkind.Kinded.
func (e *ReadError) Kind() errkind.Kind { return errkind.ManifestRead }

// ParseError reports a manifest document that is not well formed.
type ParseError struct {
	Path   string
	Issues []string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("invalid manifest")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind implements errkind.Kinded.
func (e *ParseError) Kind() errkind.Kind { return errkind.ManifestParse }

// FormatForPath picks the document format from the file extension.
// Anything other than .yaml or .yml is read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and parses the manifest at path.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, &ReadError{Path: path, Err: err}
	}

	m, err := Parse(data, FormatForPath(path))
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Path = path
		}
		return Manifest{}, err
	}
	return m, nil
}

// Parse decodes a manifest document after checking it against the
// document schema.
func Parse(data []byte, format Format) (Manifest, error) {
	var (
		doc      gojsonschema.JSONLoader
		generic  any
		steps    []Step
		decodeFn func() error
	)

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return Manifest{}, &ParseError{Err: err}
		}
		doc = gojsonschema.NewGoLoader(generic)
		decodeFn = func() error { return yaml.Unmarshal(data, &steps) }
	case FormatJSON:
		doc = gojsonschema.NewBytesLoader(data)
		decodeFn = func() error {
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			return dec.Decode(&steps)
		}
	default:
		return Manifest{}, &ParseError{Err: fmt.Errorf("unsupported manifest format %q", format)}
	}

	result, err := gojsonschema.Validate(schemaLoader, doc)
	if err != nil {
		return Manifest{}, &ParseError{Err: err}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return Manifest{}, &ParseError{Issues: issues}
	}

	if err := decodeFn(); err != nil {
		return Manifest{}, &ParseError{Err: err}
	}

	m := Manifest{Steps: steps}
	if err := m.Check(); err != nil {
		return Manifest{}, &ParseError{Err: err}
	}
	return m, nil
}
