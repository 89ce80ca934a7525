package actionserver

import "github.com/buger/jsonparser"

// JSONConvert decodes a raw JSON-object goal payload into a
// map[string]any, for middleware implementations that deliver goal
// requests as undeserialized wire bytes rather than typed Go values (the
// counterpart to simmw, which already hands typed values through
// IdentityConvert). It walks the object with jsonparser.ObjectEach rather
// than encoding/json because the goal schema is not known to this package
// at compile time.
func JSONConvert(raw Goal) (Goal, error) {
	buf, ok := raw.([]byte)
	if !ok {
		return nil, ErrInvalidGoalPayload
	}

	fields := make(map[string]any)
	err := jsonparser.ObjectEach(buf, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		switch dataType {
		case jsonparser.String:
			fields[string(key)] = string(value)
		case jsonparser.Number:
			n, err := jsonparser.ParseFloat(value)
			if err != nil {
				return err
			}
			fields[string(key)] = n
		case jsonparser.Boolean:
			b, err := jsonparser.ParseBoolean(value)
			if err != nil {
				return err
			}
			fields[string(key)] = b
		case jsonparser.Null:
			fields[string(key)] = nil
		default:
			fields[string(key)] = string(value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}
