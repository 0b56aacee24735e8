package storage

import (
	"bytes"
	"encoding/gob"
	"reflect"
)

// Codec turns cached values into bytes and back for the disk storage.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// GobCodec encodes values as gob interface values, so the concrete type
// travels with the data. Concrete types other than the gob built-ins must be
// registered, see RegisterType.
type GobCodec struct{}

func (GobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// RegisterType makes T decodable by GobCodec. Interface types are ignored,
// and a name already claimed by another type keeps its first registration.
func RegisterType[T any]() {
	var zero T
	if reflect.TypeOf(zero) == nil {
		return
	}
	defer func() { _ = recover() }()
	gob.Register(zero)
}
