package ai

import (
	"context"
	"errors"

	"github.com/amishk599/pathwise/internal/model"
)

// ErrGeneratorDisabled is returned by DisabledGenerator.
var ErrGeneratorDisabled = errors.New("insight generation is disabled (ai.enabled is false)")

// DisabledGenerator is used when ai.enabled is false. Stored insights are still
// served; anything that would need a generation fails.
type DisabledGenerator struct{}

// NewDisabledGenerator returns a DisabledGenerator.
func NewDisabledGenerator() *DisabledGenerator {
	return &DisabledGenerator{}
}

// Generate always fails with ErrGeneratorDisabled.
func (DisabledGenerator) Generate(context.Context, string) (model.InsightPayload, error) {
	return model.InsightPayload{}, ErrGeneratorDisabled
}
