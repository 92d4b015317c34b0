package kserde

import (
	"encoding/json"
	"fmt"
)

// JSON returns a Serde encoding T with encoding/json. Decode failures name
// the target type.
func JSON[T any]() Serde[T] {
	return Serde[T]{Serializer: JSONSerializer[T](), Deserializer: JSONDeserializer[T]()}
}

func JSONSerializer[T any]() Serializer[T] {
	return func(v T) ([]byte, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %T as json: %w", v, err)
		}
		return b, nil
	}
}

func JSONDeserializer[T any]() Deserializer[T] {
	return func(data []byte) (T, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			var zero T
			return zero, fmt.Errorf("decode json into %T: %w", v, err)
		}
		return v, nil
	}
}
