package kserde

// BytesSerializer copies the input so the store never aliases caller memory.
var BytesSerializer = func(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

var BytesDeserializer = func(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

var Bytes = Serde[[]byte]{
	Serializer:   BytesSerializer,
	Deserializer: BytesDeserializer,
}
