package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")
	require.NotNil(t, m.Quote)
	require.NotNil(t, m.Strategy)
	require.NotNil(t, m.Network)

	// registering twice on the same registry must fail
	assert.Panics(t, func() { New(reg, "test") })
}

func TestQuoteMetrics(t *testing.T) {
	m := NewQuoteMetrics(prometheus.NewRegistry(), "test_quote")

	m.Requests.WithLabelValues("router1", "exact_output").Inc()
	m.Failures.WithLabelValues("router1", "pair_not_found").Inc()
	m.Failures.WithLabelValues("router1", "pair_not_found").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("router1", "exact_output")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Failures.WithLabelValues("router1", "pair_not_found")))

	m.Latency.WithLabelValues("router1").Observe(0.01)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Latency))
}

func TestStrategyMetrics(t *testing.T) {
	m := NewStrategyMetrics(prometheus.NewRegistry(), "test_strategy")

	m.TiersEvaluated.WithLabelValues("uni_sushi").Add(4)
	m.TiersSkipped.WithLabelValues("uni_sushi", "rpc_error").Inc()
	m.Executions.WithLabelValues("uni_sushi", "submitted").Inc()

	assert.Equal(t, float64(4), testutil.ToFloat64(m.TiersEvaluated.WithLabelValues("uni_sushi")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TiersSkipped.WithLabelValues("uni_sushi", "rpc_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Executions.WithLabelValues("uni_sushi", "submitted")))
}

func TestNetworkMetrics(t *testing.T) {
	m := NewNetworkMetrics(prometheus.NewRegistry(), "test_network")

	m.Blocks.Inc()
	m.LatestBlock.Set(19000000)
	m.CyclesSuperseded.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Blocks))
	assert.Equal(t, float64(19000000), testutil.ToFloat64(m.LatestBlock))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CyclesSuperseded))
}
