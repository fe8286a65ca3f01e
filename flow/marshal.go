package flow

import "encoding/json"

// marshalValue/unmarshalValue round-trip a row through JSON so it can be
// held in any storage.Storage backend (storage/inmemory by default,
// storage/bbolt when durability across process restarts matters) between
// ReduceAll's buffering and flush phases.
func marshalValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func unmarshalValue[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
