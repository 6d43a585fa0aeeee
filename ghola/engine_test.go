package ghola

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/seb7887/lazarus/observability"
	"github.com/seb7887/lazarus/sietch"
)

func TestEngine_Instrumentation(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t,
		WithMetrics(observability.NewMetrics(reg, "test")),
		WithTracer(observability.NewTracer(noop.NewTracerProvider())),
	)
	seedTree(t, f)
	ctx := context.Background()

	_, err := f.engine.RestoreOne(ctx, &doc{ID: "d1"}, RestoreOptions{Cascade: true})
	require.NoError(t, err)
	_, err = f.engine.RestoreOne(ctx, &doc{ID: "d1"}, RestoreOptions{Cascade: true, DryRun: true})
	require.NoError(t, err)
	_, err = f.engine.CascadeSoftDelete(ctx, &note{ID: "n2"})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "test_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "restore/restored, restore/not_deleted, delete/deleted")

	n, err = testutil.GatherAndCount(reg, "test_objects_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n, "four restored types and one deleted type")
}

func TestEngine_RegisterCascadeReplaces(t *testing.T) {
	f := newFixture(t)
	calls := 0
	first := func(ctx context.Context, d *Deletion, e sietch.Entity) error { calls += 100; return nil }
	second := func(ctx context.Context, d *Deletion, e sietch.Entity) error {
		calls++
		_, err := d.MarkDeleted(ctx, e)
		return err
	}
	f.engine.RegisterCascade("owner", first)
	f.engine.RegisterCascade("owner", second)
	f.create(t, &owner{ID: "o1"})

	res, err := f.engine.CascadeSoftDelete(context.Background(), &owner{ID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Count)
	assert.Same(t, f.store, f.engine.Store())
}
