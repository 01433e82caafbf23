package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Strob0t/tcof/internal/domain"
)

// Payload is a sparse update keyed by external field name. Absent keys are
// left untouched by the applier; unknown keys are ignored.
type Payload map[string]json.RawMessage

// ParsePayload decodes a JSON object into a Payload.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", domain.ErrValidation)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// Has reports whether the payload carries key.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value of key when it is a JSON string.
func (p Payload) String(key string) (string, bool) {
	raw, ok := p[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Origin returns the declared origin, or "" when absent or not a string.
func (p Payload) Origin() Origin {
	s, _ := p.String("origin")
	return Origin(s)
}

// Stage returns the declared stage, or "" when absent or not a string.
func (p Payload) Stage() Stage {
	s, _ := p.String("stage")
	return Stage(s)
}

// BuildPatch translates the payload into column assignments. Read-only and
// derived fields are dropped. Values that cannot be coerced yield
// ErrValidation and no partial patch.
func (p Payload) BuildPatch() (Patch, error) {
	patch := make(Patch, len(p))
	for key, raw := range p {
		f, ok := FieldByExternal(key)
		if !ok || !f.Writable() {
			continue
		}
		v, err := decodeField(f, raw)
		if err != nil {
			return nil, err
		}
		patch[f.Column] = v
	}
	return patch, nil
}

func decodeField(f Field, raw json.RawMessage) (any, error) {
	switch f.Kind {
	case KindText:
		s, ok := decodeString(raw)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%s must be a non-empty string: %w", f.External, domain.ErrValidation)
		}
		return s, nil

	case KindStatus:
		if isNull(raw) {
			return DefaultStatus, nil
		}
		s, ok := decodeString(raw)
		if !ok {
			return nil, fmt.Errorf("%s must be a string: %w", f.External, domain.ErrValidation)
		}
		if s == "" {
			return DefaultStatus, nil
		}
		return s, nil

	case KindOptionalText:
		if isNull(raw) {
			return nil, nil
		}
		s, ok := decodeString(raw)
		if !ok {
			return nil, fmt.Errorf("%s must be a string or null: %w", f.External, domain.ErrValidation)
		}
		if s == "" {
			return nil, nil
		}
		return s, nil

	case KindBool:
		return coerceBool(raw), nil

	case KindInt:
		n, ok := coerceInt(raw)
		if !ok {
			return nil, fmt.Errorf("%s must be an integer: %w", f.External, domain.ErrValidation)
		}
		return n, nil

	case KindStage:
		s, _ := decodeString(raw)
		if !Stage(s).Valid() {
			return nil, fmt.Errorf("%s must be one of %v: %w", f.External, Stages, domain.ErrValidation)
		}
		return s, nil

	case KindOrigin:
		s, ok := decodeString(raw)
		if isNull(raw) || (ok && s == "") {
			return string(OriginCustom), nil
		}
		if !Origin(s).Valid() {
			return nil, fmt.Errorf("%s must be one of %v: %w", f.External, origins, domain.ErrValidation)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%s is not writable: %w", f.External, domain.ErrValidation)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// coerceBool accepts booleans, numbers and strings. Strings that
// strconv.ParseBool rejects count as true when non-empty; objects and arrays
// count as true, null as false.
func coerceBool(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		return b != ""
	default:
		return true
	}
}

func coerceInt(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || i > math.MaxInt32 || i < math.MinInt32 {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
