package cqrs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/cqrs"
)

type createWidget struct {
	Name string `json:"name"`
}

func (createWidget) CommandName() string { return "widget.Create" }

type renameWidget struct {
	Name string `json:"name"`
}

func (renameWidget) CommandName() string { return "widget.Rename" }

func TestCommandBus_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		bus := cqrs.NewCommandBus()

		err := bus.Register("widget.Create", func(_ context.Context, _ cqrs.Command) (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		handler := func(_ context.Context, _ cqrs.Command) (any, error) { return nil, nil }

		require.NoError(t, bus.Register("widget.Create", handler))

		err := bus.Register("widget.Create", handler)
		require.ErrorIs(t, err, cqrs.ErrHandlerAlreadyRegistered)
	})

	t.Run("empty command name", func(t *testing.T) {
		bus := cqrs.NewCommandBus()

		err := bus.Register("", func(_ context.Context, _ cqrs.Command) (any, error) {
			return nil, nil
		})
		require.Error(t, err)
	})

	t.Run("nil handler", func(t *testing.T) {
		bus := cqrs.NewCommandBus()

		err := bus.Register("widget.Create", nil)
		require.Error(t, err)
	})

	t.Run("register again after unregister", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		handler := func(_ context.Context, _ cqrs.Command) (any, error) { return nil, nil }

		require.NoError(t, bus.Register("widget.Create", handler))
		bus.Unregister("widget.Create")
		require.NoError(t, bus.Register("widget.Create", handler))
	})
}

func TestCommandBus_Execute(t *testing.T) {
	t.Run("routes to handler and returns result", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		require.NoError(t, bus.Register("widget.Create", func(_ context.Context, cmd cqrs.Command) (any, error) {
			c, ok := cmd.(createWidget)
			require.True(t, ok)
			return "created:" + c.Name, nil
		}))

		result, err := bus.Execute(context.Background(), createWidget{Name: "gizmo"})

		require.NoError(t, err)
		assert.Equal(t, "created:gizmo", result)
	})

	t.Run("unregistered command fails", func(t *testing.T) {
		bus := cqrs.NewCommandBus()

		_, err := bus.Execute(context.Background(), createWidget{})
		require.ErrorIs(t, err, cqrs.ErrHandlerNotFound)
	})

	t.Run("handler error propagates unchanged", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		handlerErr := errors.New("boom")
		require.NoError(t, bus.Register("widget.Create", func(_ context.Context, _ cqrs.Command) (any, error) {
			return nil, handlerErr
		}))

		_, err := bus.Execute(context.Background(), createWidget{})
		require.ErrorIs(t, err, handlerErr)
	})

	t.Run("handlers are independent per command name", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		require.NoError(t, bus.Register("widget.Create", func(_ context.Context, _ cqrs.Command) (any, error) {
			return "create", nil
		}))
		require.NoError(t, bus.Register("widget.Rename", func(_ context.Context, _ cqrs.Command) (any, error) {
			return "rename", nil
		}))

		result, err := bus.Execute(context.Background(), renameWidget{Name: "x"})
		require.NoError(t, err)
		assert.Equal(t, "rename", result)
	})
}

func TestCommandBus_Middleware(t *testing.T) {
	t.Run("onion order, outermost registered first", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		var trace []string

		bus.Use(func(ctx context.Context, _ cqrs.Command, next func(context.Context) (any, error)) (any, error) {
			trace = append(trace, "outer-before")
			result, err := next(ctx)
			trace = append(trace, "outer-after")
			return result, err
		})
		bus.Use(func(ctx context.Context, _ cqrs.Command, next func(context.Context) (any, error)) (any, error) {
			trace = append(trace, "inner-before")
			result, err := next(ctx)
			trace = append(trace, "inner-after")
			return result, err
		})

		require.NoError(t, bus.Register("widget.Create", func(_ context.Context, _ cqrs.Command) (any, error) {
			trace = append(trace, "handler")
			return nil, nil
		}))

		_, err := bus.Execute(context.Background(), createWidget{})

		require.NoError(t, err)
		assert.Equal(t, []string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}, trace)
	})

	t.Run("middleware can short-circuit", func(t *testing.T) {
		bus := cqrs.NewCommandBus()
		denied := errors.New("denied")

		bus.Use(func(_ context.Context, _ cqrs.Command, _ func(context.Context) (any, error)) (any, error) {
			return nil, denied
		})

		handlerCalled := false
		require.NoError(t, bus.Register("widget.Create", func(_ context.Context, _ cqrs.Command) (any, error) {
			handlerCalled = true
			return nil, nil
		}))

		_, err := bus.Execute(context.Background(), createWidget{})

		require.ErrorIs(t, err, denied)
		assert.False(t, handlerCalled)
	})

	t.Run("middleware can replace the result", func(t *testing.T) {
		bus := cqrs.NewCommandBus()

		bus.Use(func(ctx context.Context, _ cqrs.Command, next func(context.Context) (any, error)) (any, error) {
			result, err := next(ctx)
			if err != nil {
				return nil, err
			}
			return result.(string) + "-wrapped", nil
		})

		require.NoError(t, bus.Register("widget.Create", func(_ context.Context, _ cqrs.Command) (any, error) {
			return "raw", nil
		}))

		result, err := bus.Execute(context.Background(), createWidget{})

		require.NoError(t, err)
		assert.Equal(t, "raw-wrapped", result)
	})
}
