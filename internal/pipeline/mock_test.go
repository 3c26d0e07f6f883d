package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/clearance-cli/internal/config"
	"github.com/sells-group/clearance-cli/internal/guardrail"
	"github.com/sells-group/clearance-cli/internal/llm"
	"github.com/sells-group/clearance-cli/internal/monitoring"
)

// --- Generator Mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Chat(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// phase matches requests by chain name.
func phase(name string) any {
	return mock.MatchedBy(func(req llm.Request) bool { return req.Phase == name })
}

func testLimits() config.GuardrailConfig {
	return config.GuardrailConfig{
		NumberTolerance:     0.01,
		ExtractionChars:     8000,
		ClassificationChars: 5000,
		FixInputChars:       4000,
		AuditConfidenceCap:  0.3,
		MaxInputChars:       50000,
	}
}

func newTestDeps(t *testing.T, gen llm.Generator) (Deps, *monitoring.Metrics) {
	t.Helper()
	schemas, err := guardrail.NewOutputValidator(guardrail.DefaultSchemas())
	require.NoError(t, err)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	return Deps{
		Generator:     gen,
		Schemas:       schemas,
		Numbers:       guardrail.NewNumberChecker(0.01),
		Metrics:       metrics,
		ReasonerModel: "reasoner",
		WriterModel:   "writer",
		Limits:        testLimits(),
	}, metrics
}
