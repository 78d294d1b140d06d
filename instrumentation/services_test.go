package instrumentation_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/instrumentation/instrumentationtest"
	"github.com/itsneelabh/gomind-monitoring/registry"
)

type reportingComponent struct{}

// exercise reports one operation and one exception through the
// source-typed sinks resolved from reg.
func exercise(t *testing.T, reg *registry.Registry) {
	t.Helper()

	ops, err := instrumentation.OperationsFor[reportingComponent](reg)
	require.NoError(t, err)
	exceptions, err := instrumentation.ExceptionsFor[reportingComponent](reg)
	require.NoError(t, err)

	_, op := ops.StartOperation(context.Background(), "Work", nil)
	require.NoError(t, op.Release())
	exceptions.ReportException(context.Background(), errors.New("failed"), nil)
}

func TestAddInstrumentation_NonGenericRegisteredBefore(t *testing.T) {
	reg := registry.New()
	rec := instrumentationtest.NewRecorder()
	rec.AddNonGenericTo(reg)

	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)
	exercise(t, reg)

	assert.Len(t, rec.Operations(), 1)
	assert.Len(t, rec.Exceptions(), 1)
	assert.Equal(t, instrumentation.TagOf[reportingComponent](), rec.Operations()[0].Detail.PropertiesIfPresent()["Category"])
}

func TestAddInstrumentation_NonGenericRegisteredAfter(t *testing.T) {
	reg := registry.New()
	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)

	rec := instrumentationtest.NewRecorder()
	rec.AddNonGenericTo(reg)
	exercise(t, reg)

	assert.Len(t, rec.Operations(), 1)
	assert.Len(t, rec.Exceptions(), 1)
}

func TestAddInstrumentation_GenericRegisteredBefore(t *testing.T) {
	reg := registry.New()
	rec := instrumentationtest.NewRecorder()
	rec.AddGenericTo(reg)

	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)
	exercise(t, reg)

	assert.Len(t, rec.GenericOperations(), 1)
	assert.Len(t, rec.GenericExceptions(), 1)
	assert.Empty(t, rec.Operations())
	assert.Empty(t, rec.Exceptions())
	assert.Equal(t, instrumentation.TagOf[reportingComponent](), rec.GenericOperations()[0].Source)
}

func TestAddInstrumentation_GenericRegisteredAfter(t *testing.T) {
	reg := registry.New()
	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)

	rec := instrumentationtest.NewRecorder()
	rec.AddGenericTo(reg)
	exercise(t, reg)

	assert.Len(t, rec.GenericOperations(), 1)
	assert.Len(t, rec.GenericExceptions(), 1)
	assert.Empty(t, rec.Operations())
	assert.Empty(t, rec.Exceptions())
}

func TestAddInstrumentation_DefaultsToNullSinks(t *testing.T) {
	reg := registry.New()
	got, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)
	assert.Same(t, reg, got)

	ops, err := instrumentation.Operations(reg)
	require.NoError(t, err)
	assert.IsType(t, instrumentation.NullOperationsSink{}, ops)

	exceptions, err := instrumentation.Exceptions(reg)
	require.NoError(t, err)
	assert.IsType(t, instrumentation.NullExceptionsSink{}, exceptions)

	typed, err := instrumentation.OperationsFor[reportingComponent](reg)
	require.NoError(t, err)
	assert.IsType(t, &instrumentation.TaggingOperationsSink{}, typed)

	_, op := typed.StartOperation(context.Background(), "x", nil)
	assert.Equal(t, instrumentation.NullOperation(), op)
}

func TestAddInstrumentation_Idempotent(t *testing.T) {
	reg := registry.New()
	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)
	keys := reg.Keys()

	_, err = instrumentation.AddInstrumentation(reg, instrumentation.WithSourcePropertyName("Other"))
	require.NoError(t, err)
	assert.Equal(t, keys, reg.Keys())

	rec := instrumentationtest.NewRecorder()
	rec.AddNonGenericTo(reg)
	exercise(t, reg)

	props := rec.Operations()[0].Detail.PropertiesIfPresent()
	assert.Contains(t, props, "Category", "the first property source registration is kept")
	assert.NotContains(t, props, "Other")
}

func TestAddInstrumentation_CustomPropertyName(t *testing.T) {
	reg := registry.New()
	rec := instrumentationtest.NewRecorder()
	rec.AddNonGenericTo(reg)

	_, err := instrumentation.AddInstrumentation(reg, instrumentation.WithSourcePropertyName("Source"))
	require.NoError(t, err)
	exercise(t, reg)

	assert.Equal(t, instrumentation.TagOf[reportingComponent](), rec.Operations()[0].Detail.PropertiesIfPresent()["Source"])
	assert.Equal(t, instrumentation.TagOf[reportingComponent](), rec.Exceptions()[0].Detail.PropertiesIfPresent()["Source"])
}

func TestAddInstrumentation_PerKindGenericDefaults(t *testing.T) {
	reg := registry.New()
	rec := instrumentationtest.NewRecorder()
	rec.AddNonGenericTo(reg)
	// only the operations kind gets an explicit source-typed sink
	instrumentation.AddSourceOperationsSink(reg, func(s instrumentation.Source) (instrumentation.OperationsSink, error) {
		return instrumentation.NullOperationsSink{}, nil
	})

	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)
	exercise(t, reg)

	assert.Empty(t, rec.Operations(), "explicit source-typed operations sink is kept")
	assert.Len(t, rec.Exceptions(), 1, "exceptions still get the tagging default")
}

func TestAddInstrumentation_InvalidArguments(t *testing.T) {
	_, err := instrumentation.AddInstrumentation(nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = instrumentation.AddInstrumentation(registry.New(), instrumentation.WithSourcePropertyName(""))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = instrumentation.AddSourceTagging(nil, "Category")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = instrumentation.AddSourceTagging(registry.New(), "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestAddSourceTagging(t *testing.T) {
	reg := registry.New()
	got, err := instrumentation.AddSourceTagging(reg, "Origin")
	require.NoError(t, err)
	assert.Same(t, reg, got)
	assert.True(t, reg.IsRegistered(instrumentation.TaggingPropertySourceKey))
	assert.True(t, reg.IsRegistered(instrumentation.SourceOperationsSinkKey))
	assert.True(t, reg.IsRegistered(instrumentation.SourceExceptionsSinkKey))
	assert.False(t, reg.IsRegistered(instrumentation.OperationsSinkKey), "plain sinks are not registered")

	t.Run("resolving without a plain sink fails", func(t *testing.T) {
		_, err := instrumentation.OperationsFor[reportingComponent](reg)
		require.Error(t, err)
		assert.True(t, core.IsResolutionError(err))
	})

	t.Run("failed resolution is retried once a plain sink exists", func(t *testing.T) {
		reg := registry.New()
		_, err := instrumentation.AddSourceTagging(reg, "Origin")
		require.NoError(t, err)

		_, err = instrumentation.OperationsFor[reportingComponent](reg)
		require.Error(t, err)

		rec := instrumentationtest.NewRecorder()
		rec.AddNonGenericTo(reg)
		exercise(t, reg)
		assert.Len(t, rec.Operations(), 1)
		assert.Len(t, rec.Exceptions(), 1)
	})

	t.Run("plain sink registered later is used", func(t *testing.T) {
		reg := registry.New()
		_, err := instrumentation.AddSourceTagging(reg, "Origin")
		require.NoError(t, err)
		rec := instrumentationtest.NewRecorder()
		rec.AddNonGenericTo(reg)

		exercise(t, reg)
		assert.Equal(t, instrumentation.TagOf[reportingComponent](), rec.Operations()[0].Detail.PropertiesIfPresent()["Origin"])
	})
}

func TestResolvedSourceSinksAreCachedPerType(t *testing.T) {
	reg := registry.New()
	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)

	a, err := instrumentation.OperationsFor[reportingComponent](reg)
	require.NoError(t, err)
	b, err := instrumentation.OperationsFor[reportingComponent](reg)
	require.NoError(t, err)
	c, err := instrumentation.OperationsFor[checkoutHandler](reg)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestOperationsFor_WrongRegistration(t *testing.T) {
	reg := registry.New()
	reg.AddOpenSingleton(instrumentation.SourceOperationsSinkKey, func(*registry.Registry, reflect.Type) (any, error) {
		return "not a sink", nil
	})

	_, err := instrumentation.OperationsFor[reportingComponent](reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResolutionFailure)
}

type inventoryService struct{}

type billingService struct{}

func TestExceptionsFor_TwoSourcesShareOneSink(t *testing.T) {
	reg := registry.New()
	rec := instrumentationtest.NewRecorder()
	rec.AddNonGenericTo(reg)
	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)

	inventory, err := instrumentation.ExceptionsFor[inventoryService](reg)
	require.NoError(t, err)
	billing, err := instrumentation.ExceptionsFor[billingService](reg)
	require.NoError(t, err)

	inventory.ReportException(context.Background(), errors.New("out of stock"), nil)
	billing.ReportException(context.Background(), errors.New("card declined"), nil)

	reported := rec.Exceptions()
	require.Len(t, reported, 2)
	for i, want := range []string{
		instrumentation.TagOf[inventoryService](),
		instrumentation.TagOf[billingService](),
	} {
		props := reported[i].Detail.PropertiesIfPresent()
		assert.Equal(t, map[string]string{"Category": want}, props)
		assert.Nil(t, reported[i].Detail.MetricsIfPresent())
	}
}
