package hostfuncs

import (
	"context"
)

// HostContext is the context every host function runs with. It names the
// function being invoked and the guest that invoked it, and carries values
// middleware attaches for the rest of the call.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// Guest returns the calling guest, or "" for host-side calls.
	Guest() string

	// SetValue stores a call-scoped value. Unlike context.WithValue it
	// mutates the HostContext in place.
	SetValue(key, value any)

	// GetValue retrieves a value stored with SetValue.
	GetValue(key any) (value any, ok bool)
}

type guestKey struct{}

// WithGuest records the calling guest on ctx before a registry call.
func WithGuest(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, guestKey{}, name)
}

// GuestFrom returns the guest recorded by WithGuest.
func GuestFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(guestKey{}).(string)
	return name, ok
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
	guest    string
}

// NewHostContext creates a HostContext for one invocation of funcName.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	guest, _ := GuestFrom(ctx)
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		guest:    guest,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) Guest() string {
	return c.guest
}

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom returns ctx itself when it already is a HostContext, and
// wraps it otherwise.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}
