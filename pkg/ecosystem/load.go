package ecosystem

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cywhale/woa23/pkg/errors"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format selects the serialization of an ecosystem document
type Format string

const (
	FormatAuto Format = ""
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" or "json"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatAuto, errors.NewValidationError("unsupported format: "+s, nil).
			WithContext("supported_formats", "yaml, json")
	}
}

// FormatFromPath infers the format from a file extension
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatAuto
	}
}

func detectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads, defaults and validates an ecosystem file
func Load(path string) (*Ecosystem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("ecosystem file not found", err).WithContext("filename", path)
		}
		return nil, errors.NewIOError("failed to read ecosystem file", err).WithContext("filename", path)
	}

	eco, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, errors.NewValidationError("invalid ecosystem file", err).WithContext("filename", path)
	}

	eco.source = path
	return eco, nil
}

// Parse decodes an ecosystem document, applies defaults and validates every app
func Parse(data []byte, format Format) (*Ecosystem, error) {
	if format == FormatAuto {
		format = detectFormat(data)
	}

	var doc document
	var err error
	switch format {
	case FormatJSON:
		err = decodeJSON(data, &doc)
	case FormatYAML:
		err = decodeYAML(data, &doc)
	default:
		return nil, errors.NewValidationError("unsupported format: "+string(format), nil)
	}
	if err != nil {
		return nil, errors.NewValidationError("failed to parse ecosystem document", err).
			WithContext("format", string(format))
	}

	eco := &Ecosystem{apps: doc.Apps}
	for i := range eco.apps {
		eco.apps[i].applyDefaults()
	}

	if err := eco.Validate(); err != nil {
		return nil, err
	}
	return eco, nil
}

func decodeYAML(data []byte, doc *document) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(doc); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

func decodeJSON(data []byte, doc *document) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(doc)
}
