package model

// RawRecord is one per-asset entry of an upstream payload, decoded with
// json.Number for numeric values.
type RawRecord struct {
	AssetID string
	Fields  map[string]interface{}
}

// Lookup returns the raw value for key and whether the key was present.
func (r RawRecord) Lookup(key string) (interface{}, bool) {
	if r.Fields == nil {
		return nil, false
	}
	val, ok := r.Fields[key]
	return val, ok
}
