package cache

import (
	"context"
	"strings"
)

type namespaceCtxKey struct{}

// WithNamespace returns a derived context carrying ns as the task-local
// namespace in effect for calls made with it. Go has no task-local storage;
// a context value threaded explicitly through calls is the equivalent
// abstraction the design notes call for. Letting the derived context fall
// out of scope is the "restore" step — the parent context is untouched.
func WithNamespace(ctx context.Context, ns string) (context.Context, error) {
	if err := validateNamespace(ns); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, namespaceCtxKey{}, ns), nil
}

func namespaceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ns, _ := ctx.Value(namespaceCtxKey{}).(string)
	return ns
}

// resolveNamespace applies explicit-overrides-context-overrides-none.
func resolveNamespace(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return namespaceFromContext(ctx)
}

// effectiveKey composes the storage key from (namespace, key).
func effectiveKey(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// validateNamespace enforces the non-empty, no-delimiter contract required
// by Keys and ClearNamespace, and by WithNamespace.
func validateNamespace(ns string) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if strings.Contains(ns, ":") {
		return ErrNamespaceDelimiter
	}
	return nil
}
