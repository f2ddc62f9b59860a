package ecosystem

import (
	"bytes"

	"github.com/cywhale/woa23/pkg/errors"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Marshal serializes the ecosystem so that Parse(Marshal(e)) yields the same apps
func (e *Ecosystem) Marshal(format Format) ([]byte, error) {
	return marshalDocument(document{Apps: e.apps}, format)
}

// MarshalSpec serializes a single process spec as a one-app document
func MarshalSpec(spec ProcessSpec, format Format) ([]byte, error) {
	return marshalDocument(document{Apps: []ProcessSpec{spec}}, format)
}

func marshalDocument(doc document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.NewInternalError("failed to encode ecosystem as JSON", err)
		}
		return append(data, '\n'), nil

	case FormatYAML, FormatAuto:
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return nil, errors.NewInternalError("failed to encode ecosystem as YAML", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, errors.NewInternalError("failed to encode ecosystem as YAML", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, errors.NewValidationError("unsupported format: "+string(format), nil)
	}
}
