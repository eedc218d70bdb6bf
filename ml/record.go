package ml

import (
	"encoding/json"
	"fmt"
	"io"
)

// RecordFromJSON converts decoded JSON values to raw strings. Numbers keep their
// literal text when decoded with UseNumber; null becomes the empty string.
func RecordFromJSON(values map[string]interface{}) (InputRecord, error) {
	record := make(InputRecord, len(values))
	for name, v := range values {
		switch val := v.(type) {
		case string:
			record[name] = val
		case json.Number:
			record[name] = val.String()
		case float64:
			record[name] = fmt.Sprint(val)
		case nil:
			record[name] = ""
		default:
			return nil, fmt.Errorf("feature %q must be a string or a number", name)
		}
	}
	return record, nil
}

// DecodeRecord reads one JSON object of feature values.
func DecodeRecord(r io.Reader) (InputRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var values map[string]interface{}
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return RecordFromJSON(values)
}
