package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slog"
)

// An Attr is a telemetry attribute that is rendered on spans, metrics and
// log records alike.
type Attr struct {
	kv attribute.KeyValue
}

// String returns a string attribute.
func String[T ~string](k string, v T) Attr {
	return Attr{attribute.String(k, string(v))}
}

// Stringer returns a string attribute, rendered by calling v.String().
func Stringer(k string, v fmt.Stringer) Attr {
	return Attr{attribute.Stringer(k, v)}
}

// UUID returns a string attribute containing the canonical form of v.
func UUID(k string, v uuid.UUID) Attr {
	return Attr{attribute.String(k, v.String())}
}

// Type returns a string attribute containing the name of v's type.
func Type[T any](k string, v T) Attr {
	return Attr{attribute.String(k, fmt.Sprintf("%T", v))}
}

// Bool returns a boolean attribute.
func Bool[T ~bool](k string, v T) Attr {
	return Attr{attribute.Bool(k, bool(v))}
}

// Int returns an integer attribute.
func Int[T constraints.Signed](k string, v T) Attr {
	return Attr{attribute.Int64(k, int64(v))}
}

// Float returns a floating-point attribute.
func Float[T constraints.Float](k string, v T) Attr {
	return Attr{attribute.Float64(k, float64(v))}
}

// Duration returns an attribute containing v expressed in seconds.
func Duration(k string, v time.Duration) Attr {
	return Attr{attribute.Float64(k, v.Seconds())}
}

// Time returns an attribute containing v in RFC 3339 form.
func Time(k string, v time.Time) Attr {
	return Attr{attribute.String(k, v.Format(time.RFC3339Nano))}
}

func asKeyValues(attrs []Attr) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kvs[i] = a.kv
	}

	return kvs
}

func asSlogAttrs(attrs []Attr) []any {
	sv := make([]any, len(attrs))
	for i, a := range attrs {
		sv[i] = slog.Any(
			string(a.kv.Key),
			a.kv.Value.AsInterface(),
		)
	}

	return sv
}
