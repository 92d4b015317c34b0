package kserde

// String stores the raw UTF-8 bytes. The empty string encodes to an empty,
// non-nil slice so it is not mistaken for an absent value.
var String = Serde[string]{Serializer: StringSerializer, Deserializer: StringDeserializer}

var StringSerializer = func(s string) ([]byte, error) {
	return append([]byte{}, s...), nil
}

var StringDeserializer = func(data []byte) (string, error) {
	return string(data), nil
}
