package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// validator is implemented by stored models. Validate is called on a pointer
// to the decoded value, so T should be a value type.
type validator interface {
	Validate() error
}

// Read returns the value stored under key, or initial when the key is absent,
// unreadable or malformed. Failures are logged and never returned.
func Read[T any](ctx context.Context, l *Local, key string, initial T) T {
	v, ok, err := Load[T](ctx, l, key)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			l.metrics.IncRead("decode_error")
			l.logger.Warn("Stored value is malformed, using default", "key", key, "error", err)
		} else {
			l.logger.Error("Storage read failed, using default", "key", key, "error", err)
		}
		return initial
	}
	if !ok {
		return initial
	}
	return v
}

// Load returns the value stored under key. The second result is false when
// the key is absent. Malformed content is reported as a *DecodeError.
func Load[T any](ctx context.Context, l *Local, key string) (T, bool, error) {
	var zero T
	data, ok, err := l.Raw(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := Decode[T](key, data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Write encodes value as JSON and stores it under key.
func Write[T any](ctx context.Context, l *Local, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return l.Put(ctx, key, data)
}

// Decode parses and validates stored bytes.
func Decode[T any](key string, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, &DecodeError{Key: key, Err: err}
	}
	if val, ok := any(&v).(validator); ok {
		if err := val.Validate(); err != nil {
			var zero T
			return zero, &DecodeError{Key: key, Err: err}
		}
	}
	return v, nil
}
