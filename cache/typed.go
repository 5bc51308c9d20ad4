package cache

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// GetTyped, SetTyped and GetOrComputeTyped give callers a typed view
// over Manager without forcing every caller to hand-roll map[string]any
// round-tripping. They are free functions (Go methods can't carry their
// own type parameters) that marshal T through Value via encoding/json —
// the same codec the manager itself defaults to.
//
// A T-level decode failure (the stored Value round-trips through the
// codec fine but doesn't unmarshal into T) is a data-corruption error,
// not a miss and not an upstream failure: the offending entry is purged
// from every tier and a *DecodeError is returned, mirroring how the
// untyped Value-level decode failure in readChain purges and reports
// (cache/manager.go).

// GetTyped reads key and decodes it into a T. On a T-level decode
// failure, key is removed from every tier and a *DecodeError is
// returned.
func GetTyped[T any](ctx context.Context, m *Manager, key string) (T, bool, error) {
	var zero T
	v, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, derr := decodeValue[T](v)
	if derr != nil {
		if rerr := m.Remove(ctx, key); rerr != nil {
			m.logger.Warn("typed decode failed, purge also failed", zap.String("key", key), zap.Error(rerr))
		}
		return zero, false, &DecodeError{Key: key, Err: derr}
	}
	return out, true, nil
}

// SetTyped encodes val and writes it through every tier.
func SetTyped[T any](ctx context.Context, m *Manager, key string, val T, strategy Strategy) error {
	v, err := encodeValue(val)
	if err != nil {
		return &EncodeError{Key: key, Err: err}
	}
	return m.Set(ctx, key, v, strategy)
}

// GetOrComputeTyped is GetOrCompute with a typed producer and result. An
// encode failure on the producer's result is reported as an *EncodeError,
// not folded into ErrUpstreamFailed: the producer itself succeeded, the
// codec failed. A T-level decode failure on the returned value is
// handled exactly as GetTyped handles it.
func GetOrComputeTyped[T any](ctx context.Context, m *Manager, key string, strategy Strategy, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := m.GetOrCompute(ctx, key, strategy, func(ctx context.Context) (Value, error) {
		t, perr := produce(ctx)
		if perr != nil {
			return nil, perr
		}
		encoded, eerr := encodeValue(t)
		if eerr != nil {
			return nil, &EncodeError{Key: key, Err: eerr}
		}
		return encoded, nil
	})
	if err != nil {
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			return zero, encErr
		}
		return zero, err
	}

	out, derr := decodeValue[T](v)
	if derr != nil {
		if rerr := m.Remove(ctx, key); rerr != nil {
			m.logger.Warn("typed decode failed, purge also failed", zap.String("key", key), zap.Error(rerr))
		}
		return zero, &DecodeError{Key: key, Err: derr}
	}
	return out, nil
}

func encodeValue[T any](v T) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Value
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeValue[T any](v Value) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}
