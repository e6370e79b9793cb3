// Package server implements the optional local IPC server: a
// line-delimited JSON request/response protocol over a UNIX domain socket
// or TCP, giving other processes on the same host access to one mudis
// instance without embedding the library.
package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiebor81/mudis/cache"
)

// Wire command names, exactly as enumerated in the protocol table.
const (
	CmdRead                = "read"
	CmdWrite               = "write"
	CmdDelete              = "delete"
	CmdExists              = "exists"
	CmdFetch               = "fetch"
	CmdInspect             = "inspect"
	CmdKeys                = "keys"
	CmdClearNamespace      = "clear_namespace"
	CmdLeastTouched        = "least_touched"
	CmdAllKeys             = "all_keys"
	CmdCurrentMemoryBytes  = "current_memory_bytes"
	CmdMaxMemoryBytes      = "max_memory_bytes"
	CmdMetrics             = "metrics"
)

// Request is one line of client input. Not every field applies to every
// command; unused fields are simply left zero.
type Request struct {
	Cmd       string  `json:"cmd"`
	Key       string  `json:"key,omitempty"`
	Value     any     `json:"value,omitempty"`
	TTL       *float64 `json:"ttl,omitempty"` // seconds
	Namespace string  `json:"namespace,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Fallback  any     `json:"fallback,omitempty"`
}

// Response is one line of server output.
type Response struct {
	OK    bool   `json:"ok"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func errResponse(err error) Response { return Response{OK: false, Error: err.Error()} }
func okResponse(v any) Response      { return Response{OK: true, Value: v} }

// ttlDuration converts the wire "ttl" field (seconds, possibly
// fractional) into the *time.Duration the Cache API expects. A nil field
// means "not provided", distinct from an explicit zero.
func ttlDuration(req Request) *time.Duration {
	if req.TTL == nil {
		return nil
	}
	d := time.Duration(*req.TTL * float64(time.Second))
	return &d
}

// Dispatch executes one decoded request against c and returns the
// response to write back. It never panics: any cache-level error is
// captured into Response.Error.
func Dispatch(ctx context.Context, c cache.Cache, req Request) Response {
	switch req.Cmd {
	case CmdRead:
		v, ok, err := c.Read(ctx, req.Key, req.Namespace)
		if err != nil {
			return errResponse(err)
		}
		if !ok {
			return okResponse(nil)
		}
		return okResponse(v)

	case CmdWrite:
		if err := c.Write(ctx, req.Key, req.Value, ttlDuration(req), req.Namespace); err != nil {
			return errResponse(err)
		}
		return okResponse(nil)

	case CmdDelete:
		c.Delete(ctx, req.Key, req.Namespace)
		return okResponse(nil)

	case CmdExists:
		return okResponse(c.Exists(ctx, req.Key, req.Namespace))

	case CmdFetch:
		loader := func(context.Context) (any, error) {
			if req.Fallback == nil {
				return nil, cache.ErrNoLoader
			}
			return req.Fallback, nil
		}
		v, err := c.Fetch(ctx, req.Key, req.Namespace, ttlDuration(req), false, true, loader)
		if err != nil {
			return errResponse(err)
		}
		return okResponse(v)

	case CmdInspect:
		md, ok := c.Inspect(ctx, req.Key, req.Namespace)
		if !ok {
			return okResponse(nil)
		}
		return okResponse(inspectPayload(md))

	case CmdKeys:
		ks, err := c.Keys(req.Namespace)
		if err != nil {
			return errResponse(err)
		}
		return okResponse(ks)

	case CmdClearNamespace:
		if err := c.ClearNamespace(req.Namespace); err != nil {
			return errResponse(err)
		}
		return okResponse(nil)

	case CmdLeastTouched:
		n := req.Limit
		if n <= 0 {
			n = 10
		}
		return okResponse(c.LeastTouched(n))

	case CmdAllKeys:
		return okResponse(c.AllKeys())

	case CmdCurrentMemoryBytes:
		return okResponse(c.CurrentMemoryBytes())

	case CmdMaxMemoryBytes:
		return okResponse(c.MaxMemoryBytes())

	case CmdMetrics:
		if req.Namespace != "" {
			snap, ok := c.NamespaceMetrics(req.Namespace)
			if !ok {
				return okResponse(nil)
			}
			return okResponse(snap)
		}
		return okResponse(c.Metrics())

	default:
		return errResponse(fmt.Errorf("%w: %q", errUnknownCommand, req.Cmd))
	}
}

var errUnknownCommand = fmt.Errorf("mudis: unknown command")

// fatal reports whether resp represents an unknown-command failure that
// should close the connection, as opposed to an ordinary application-level
// error that leaves the connection open for further requests. Malformed
// JSON never reaches Dispatch; the connection loop closes on it directly.
func fatal(resp Response) bool {
	return !resp.OK && strings.Contains(resp.Error, errUnknownCommand.Error())
}

func inspectPayload(md cache.Metadata) map[string]any {
	payload := map[string]any{
		"key":         md.Key,
		"shard_index": md.ShardIndex,
		"created_at":  md.CreatedAt,
		"size_bytes":  md.SizeBytes,
		"compressed":  md.Compressed,
	}
	if !md.ExpiresAt.IsZero() {
		payload["expires_at"] = md.ExpiresAt
	} else {
		payload["expires_at"] = nil
	}
	return payload
}
