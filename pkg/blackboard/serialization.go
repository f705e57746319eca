package blackboard

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialization helpers for converting blackboard values to and from text.
//
// Redis stores the mirrored blackboard as a string-to-string hash keyed by key
// name. Every kind has one canonical text form so that values round-trip
// through the hash, the CLI (--set key=value) and tree definition files.
//
//	bool      true | false
//	int       -12
//	float     0.5
//	enum      value name, or its index
//	name      any text ("" is None)
//	string    any text
//	class     class name
//	vector    x,y,z | invalid
//	rotator   pitch,yaw,roll | invalid
//	object    described with %v, not parsable (only "" / none clears it)

const invalidText = "invalid"

// DescribeValue renders a key's current value in its canonical text form.
// Unknown keys describe as an empty string.
func (b *Instance) DescribeValue(id KeyID) string {
	k, ok := b.Key(id)
	if !ok {
		return ""
	}

	switch k.Type.Kind {
	case KindObject:
		v, _ := b.GetValueAsObject(id)
		if v == nil {
			return "none"
		}
		return fmt.Sprintf("%v", v)
	case KindClass:
		v, _ := b.GetValueAsClass(id)
		return v
	case KindString:
		v, _ := b.GetValueAsString(id)
		return v
	case KindName:
		v, _ := b.GetValueAsName(id)
		return v
	case KindEnum, KindNativeEnum:
		v, _ := b.GetValueAsEnum(id)
		if int(v) < len(k.Type.EnumValues) {
			return k.Type.EnumValues[v]
		}
		return strconv.Itoa(int(v))
	case KindInt:
		v, _ := b.GetValueAsInt(id)
		return strconv.FormatInt(int64(v), 10)
	case KindFloat:
		v, _ := b.GetValueAsFloat(id)
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case KindBool:
		v, _ := b.GetValueAsBool(id)
		return strconv.FormatBool(v)
	case KindVector:
		v, _ := b.GetValueAsVector(id)
		if !v.IsValid() {
			return invalidText
		}
		return formatTriple(v.X, v.Y, v.Z)
	case KindRotator:
		v, _ := b.GetValueAsRotator(id)
		if !v.IsValid() {
			return invalidText
		}
		return formatTriple(v.Pitch, v.Yaw, v.Roll)
	}
	return ""
}

// SetValueFromString parses text in the key's canonical form and stores it.
func (b *Instance) SetValueFromString(id KeyID, text string) error {
	k, ok := b.Key(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrInvalidKey, id)
	}

	switch k.Type.Kind {
	case KindObject:
		if text == "" || strings.EqualFold(text, "none") {
			return b.SetValueAsObject(id, nil)
		}
		return fmt.Errorf("key '%s': object values cannot be parsed from text", k.Name)
	case KindClass:
		return b.SetValueAsClass(id, text)
	case KindString:
		return b.SetValueAsString(id, text)
	case KindName:
		return b.SetValueAsName(id, text)
	case KindEnum, KindNativeEnum:
		v, err := ParseEnumValue(k.Type, text)
		if err != nil {
			return fmt.Errorf("key '%s': %w", k.Name, err)
		}
		return b.SetValueAsEnum(id, v)
	case KindInt:
		v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if err != nil {
			return fmt.Errorf("key '%s': invalid int %q: %w", k.Name, text, err)
		}
		return b.SetValueAsInt(id, int32(v))
	case KindFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 32)
		if err != nil {
			return fmt.Errorf("key '%s': invalid float %q: %w", k.Name, text, err)
		}
		return b.SetValueAsFloat(id, float32(v))
	case KindBool:
		v, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("key '%s': invalid bool %q: %w", k.Name, text, err)
		}
		return b.SetValueAsBool(id, v)
	case KindVector:
		if strings.TrimSpace(text) == invalidText {
			return b.SetValueAsVector(id, InvalidVector)
		}
		x, y, z, err := parseTriple(text)
		if err != nil {
			return fmt.Errorf("key '%s': invalid vector: %w", k.Name, err)
		}
		return b.SetValueAsVector(id, Vector{X: x, Y: y, Z: z})
	case KindRotator:
		if strings.TrimSpace(text) == invalidText {
			return b.SetValueAsRotator(id, InvalidRotator)
		}
		p, y, r, err := parseTriple(text)
		if err != nil {
			return fmt.Errorf("key '%s': invalid rotator: %w", k.Name, err)
		}
		return b.SetValueAsRotator(id, Rotator{Pitch: p, Yaw: y, Roll: r})
	}
	return fmt.Errorf("key '%s': unsupported kind %s", k.Name, k.Type.Kind)
}

// ParseEnumValue resolves an enum value by name or by numeric index.
func ParseEnumValue(t KeyType, text string) (uint8, error) {
	text = strings.TrimSpace(text)
	for i, name := range t.EnumValues {
		if name == text {
			return uint8(i), nil
		}
	}
	n, err := strconv.ParseUint(text, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown enum value %q", text)
	}
	if len(t.EnumValues) > 0 && int(n) >= len(t.EnumValues) {
		return 0, fmt.Errorf("enum index %d out of range (%d values)", n, len(t.EnumValues))
	}
	return uint8(n), nil
}

// Values renders every key as name -> canonical text.
func (b *Instance) Values() map[string]string {
	out := make(map[string]string, len(b.keys))
	for _, k := range b.keys {
		out[k.Name] = b.DescribeValue(k.ID)
	}
	return out
}

// ValuesToHash converts the given keys to Redis hash fields.
// Object keys are skipped since their text form cannot be restored.
func ValuesToHash(b *Instance, ids []KeyID) map[string]interface{} {
	hash := make(map[string]interface{}, len(ids))
	for _, id := range ids {
		k, ok := b.Key(id)
		if !ok || k.Type.Kind == KindObject {
			continue
		}
		hash[k.Name] = b.DescribeValue(id)
	}
	return hash
}

// ApplyHash writes hash fields back into b. Unknown fields are ignored and the
// first parse error is returned after all valid fields have been applied.
func ApplyHash(b *Instance, hash map[string]string) error {
	var firstErr error
	for name, text := range hash {
		id := b.KeyID(name)
		if id == InvalidKey {
			continue
		}
		if k, _ := b.Key(id); k.Type.Kind == KindObject {
			continue
		}
		if err := b.SetValueFromString(id, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func formatTriple(a, c, d float32) string {
	return fmt.Sprintf("%s,%s,%s",
		strconv.FormatFloat(float64(a), 'g', -1, 32),
		strconv.FormatFloat(float64(c), 'g', -1, 32),
		strconv.FormatFloat(float64(d), 'g', -1, 32))
}

func parseTriple(text string) (float32, float32, float32, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected 3 comma-separated numbers, got %q", text)
	}
	var out [3]float32
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out[0], out[1], out[2], nil
}
