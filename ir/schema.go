package ir

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/wippyai/hostbridge/errors"
)

// Schema returns the JSON Schema of the module file format.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	s := r.Reflect(&File{})
	s.Title = "hostbridge binding module"

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIR, errors.KindInvalidData, err, "marshal schema")
	}
	return out, nil
}
