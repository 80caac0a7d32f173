package board

import (
	_ "embed"

	"github.com/ixentbench/purple/pkg/agent"
	"github.com/ixentbench/purple/pkg/errmodel"
)

// ObservationSchema is the JSON schema (draft 2020-12) inbound payloads must satisfy.
//
//go:embed observation.schema.json
var ObservationSchema []byte

var observationSchema = agent.MustCompileSchema(ObservationSchema)

// CodeInvalidObservation is reported for inbound payloads that fail the schema or decoding.
const CodeInvalidObservation = "invalid_observation"

// Parse validates an inbound payload against ObservationSchema and decodes it.
// Failures are validation-category errors so callers can answer 400.
func Parse(raw []byte) (*Observation, error) {
	if err := observationSchema.ValidateJSON(raw); err != nil {
		return nil, errmodel.Validation(CodeInvalidObservation, err.Error(), nil)
	}
	obs, err := Decode(raw)
	if err != nil {
		return nil, errmodel.Validation(CodeInvalidObservation, err.Error(), nil)
	}
	return obs, nil
}
