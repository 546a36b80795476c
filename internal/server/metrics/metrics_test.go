package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCollectors(reg)

	before := testutil.ToFloat64(Logins.WithLabelValues("web", Result(nil)))
	Logins.WithLabelValues("web", Result(nil)).Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Logins.WithLabelValues("web", "ok")))

	require.Equal(t, "error", Result(errors.New("boom")))

	n, err := testutil.GatherAndCount(reg, "cairos_logins_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}
