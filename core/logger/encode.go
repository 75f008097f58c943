package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// fields is one log line before encoding. Group attrs are flattened to
// dotted keys.
type fields map[string]any

func (f fields) add(prefix string, attr slog.Attr) {
	key := attr.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	val := attr.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		for _, child := range val.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, val); ok {
		f[k] = v
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// setDefault sets key unless a non-empty value is already there.
func (f fields) setDefault(key string, val any) {
	if f.str(key) == "" {
		f[key] = val
	}
}

func (f fields) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	for _, kv := range []struct {
		key string
		val any
		ok  bool
	}{
		{"rid", RIDFrom(ctx), RIDFrom(ctx) != ""},
		{"user_id", UserIDFrom(ctx), UserIDFrom(ctx) != 0},
		{"update_id", UpdateIDFrom(ctx), UpdateIDFrom(ctx) != 0},
		{"chat_id", ChatIDFrom(ctx), ChatIDFrom(ctx) != 0},
		{"handler", HandlerFrom(ctx), HandlerFrom(ctx) != ""},
		{"session_id", SessionIDFrom(ctx), SessionIDFrom(ctx) != ""},
		{"scene", SceneFrom(ctx), SceneFrom(ctx) != ""},
	} {
		if _, present := f[kv.key]; kv.ok && !present {
			f[kv.key] = kv.val
		}
	}
}

// normalizeEnums maps status to the known set and drops unknown outcomes.
func (f fields) normalizeEnums() {
	if s := f.str("status"); s != "" {
		f["status"], _ = normalizeStatus(s)
	}
	if o := f.str("outcome"); o != "" {
		if n, ok := normalizeOutcome(o); ok {
			f["outcome"] = n
		} else {
			delete(f, "outcome")
		}
	}
}

func (f fields) prune() {
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}
}

// keys lists order first, then the remaining keys sorted.
func (f fields) keys(order []string) []string {
	out := make([]string, 0, len(f))
	for _, k := range order {
		if _, ok := f[k]; ok && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	listed := len(out)
	for k := range f {
		if !slices.Contains(out[:listed], k) {
			out = append(out, k)
		}
	}
	slices.Sort(out[listed:])
	return out
}

func (f fields) encode(format logFormat, order []string) ([]byte, error) {
	var b strings.Builder
	keys := f.keys(order)
	if format == formatJSON {
		b.WriteByte('{')
		for i, k := range keys {
			data, err := json.Marshal(f[k])
			if err != nil {
				return nil, err
			}
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			b.Write(data)
		}
		b.WriteByte('}')
	} else {
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(kvValue(f[k]))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func kvValue(val any) string {
	var s string
	switch v := val.(type) {
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v)
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

// durationKey renames duration attributes so every duration is logged in ms.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}
