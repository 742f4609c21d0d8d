package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLabelsEmpty(t *testing.T) {
	labels, err := ParseLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)
}

func TestParseLabelsBasic(t *testing.T) {
	labels, err := ParseLabels("service=agent-memory-service,env=prod")
	require.NoError(t, err)
	require.Equal(t, "agent-memory-service", labels["service"])
	require.Equal(t, "prod", labels["env"])
}

func TestParseLabelsExpandsEnv(t *testing.T) {
	t.Setenv("METRICS_TEST_REGION", "us-east-1")
	labels, err := ParseLabels("region=${METRICS_TEST_REGION}")
	require.NoError(t, err)
	require.Equal(t, "us-east-1", labels["region"])
}

func TestParseLabelsRejectsMissingEquals(t *testing.T) {
	_, err := ParseLabels("not-a-pair")
	require.Error(t, err)
}

func TestParseLabelsRejectsInvalidKey(t *testing.T) {
	_, err := ParseLabels("1bad=value")
	require.Error(t, err)
}

func TestApplyConstantLabelsNoopForEmpty(t *testing.T) {
	require.NotPanics(t, func() { ApplyConstantLabels(nil) })
}
