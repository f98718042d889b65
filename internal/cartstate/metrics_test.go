package cartstate

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xenking/marketplace-client/internal/storage"
)

func TestMutationCounter(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	p1 := newTestProduct("p1", "1.00")
	remote := newMockRemote(p1)
	s, err := New(storage.NewMemory(), remote, WithMeterProvider(mp))
	require.NoError(t, err)

	s.SetAuthenticated(ctx, false)
	_, err = s.AddItem(ctx, p1, 1)
	require.NoError(t, err)

	s.SetAuthenticated(ctx, true)
	remote.addErr = errors.New("rejected")
	_, err = s.AddItem(ctx, p1, 1)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	got := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "kart.cart.mutations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("op"))
				mode, _ := dp.Attributes.Value(attribute.Key("mode"))
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				got[op.AsString()+"/"+mode.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"load/guest/ok":           1,
		"add/guest/ok":            1,
		"load/authenticated/ok":   1,
		"add/authenticated/error": 1,
	}, got)
}
