package paramengine

import (
	"fmt"
	"strings"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/golobby/cast"
)

// HandlerSpec is the canonical, typed form every duck-typed "handlers"
// payload shape is normalized into: parameter name -> target topic. Spec
// §9 calls for exactly this kind of tagged-variant input type instead of
// reflection-driven shape sniffing at every call site; ExtractHandlerSpec
// is the single normalization step.
type HandlerSpec map[string]string

// handlersKeys are the accepted payload keys, checked in order.
var handlersKeys = []string{"handlers", "Handlers", "handlerParameters"}

// ExtractHandlerSpec locates the handlers value in payload (trying each of
// the accepted key spellings) and normalizes whichever of the four shapes
// it finds into a HandlerSpec. A payload with no handlers key at all
// yields an empty, nil-error HandlerSpec — callers treat that as the
// "no-op success, zero branches" case from spec §4.3.
func ExtractHandlerSpec(payload eventcore.Payload) (HandlerSpec, error) {
	var raw any
	found := false
	for _, key := range handlersKeys {
		if v, ok := payload[key]; ok {
			raw = v
			found = true
			break
		}
	}
	if !found {
		return HandlerSpec{}, nil
	}

	switch v := raw.(type) {
	case nil:
		return HandlerSpec{}, nil
	case string:
		return normalizeSingle(v)
	case map[string]string:
		return normalizeMap(toAnyMap(v))
	case map[string]any:
		return normalizeMap(v)
	case eventcore.Payload:
		return normalizeMap(v)
	case []string:
		return normalizeStringList(v)
	case []any:
		return normalizeList(v)
	default:
		return nil, fmt.Errorf("%w: unsupported handlers payload shape %T", ErrValidation, raw)
	}
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// normalizeSingle handles the "Single" HandlerSpec variant: the handlers
// value is one bare topic string, parameter name inferred from its first
// dot-segment.
func normalizeSingle(topic string) (HandlerSpec, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: empty handler topic", ErrValidation)
	}
	return HandlerSpec{inferParameter(topic): topic}, nil
}

// normalizeMap handles the direct {name: topic} shape.
func normalizeMap(m map[string]any) (HandlerSpec, error) {
	out := make(HandlerSpec, len(m))
	for name, v := range m {
		topic, err := cast.ToString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: handler topic for parameter %q is not a string: %v", ErrValidation, name, err)
		}
		if topic == "" {
			return nil, fmt.Errorf("%w: empty handler topic for parameter %q", ErrValidation, name)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter name %q", ErrValidation, name)
		}
		out[name] = topic
	}
	return out, nil
}

// normalizeStringList handles the ordered-sequence-of-strings shape: each
// string is both the topic and (via inference) the parameter name.
func normalizeStringList(items []string) (HandlerSpec, error) {
	out := make(HandlerSpec, len(items))
	for _, topic := range items {
		if topic == "" {
			return nil, fmt.Errorf("%w: empty handler topic in list", ErrValidation)
		}
		name := inferParameter(topic)
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter name %q", ErrValidation, name)
		}
		out[name] = topic
	}
	return out, nil
}

// objectFieldAliases maps the canonical field to the case-insensitive key
// spellings accepted for it.
var (
	parameterFieldAliases = []string{"parametername", "parameter", "name"}
	handlerFieldAliases   = []string{"handlername", "handler", "eventname"}
)

// normalizeList handles the ordered-sequence-of-objects shape, where each
// object carries parameterName/handlerName fields under any of several
// accepted (case-insensitive) aliases.
func normalizeList(items []any) (HandlerSpec, error) {
	out := make(HandlerSpec, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			if s == "" {
				return nil, fmt.Errorf("%w: empty handler topic in list", ErrValidation)
			}
			name := inferParameter(s)
			if _, dup := out[name]; dup {
				return nil, fmt.Errorf("%w: duplicate parameter name %q", ErrValidation, name)
			}
			out[name] = s
			continue
		}

		obj, ok := asStringKeyedMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: handlers[%d] is neither a string nor an object", ErrValidation, i)
		}

		topic := lookupAlias(obj, handlerFieldAliases)
		name := lookupAlias(obj, parameterFieldAliases)

		if name == "" {
			if topic != "" {
				name = inferParameter(topic)
			} else {
				name = fmt.Sprintf("param_%d", i)
			}
		}

		if topic == "" {
			return nil, fmt.Errorf("%w: empty handler topic for parameter %q", ErrValidation, name)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter name %q", ErrValidation, name)
		}
		out[name] = topic
	}
	return out, nil
}

func asStringKeyedMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case eventcore.Payload:
		return m, true
	default:
		return nil, false
	}
}

func lookupAlias(obj map[string]any, aliases []string) string {
	lowered := make(map[string]any, len(obj))
	for k, v := range obj {
		lowered[strings.ToLower(k)] = v
	}
	for _, alias := range aliases {
		if v, ok := lowered[alias]; ok {
			if s, err := cast.ToString(v); err == nil {
				return s
			}
		}
	}
	return ""
}

// inferParameter derives a parameter name from a topic's first dot
// segment, e.g. "analysis.complete" -> "analysis".
func inferParameter(topic string) string {
	if idx := strings.IndexByte(topic, '.'); idx >= 0 {
		return topic[:idx]
	}
	return topic
}
