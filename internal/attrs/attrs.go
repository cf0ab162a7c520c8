// Copyright 2026 The s3transfer Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package attrs provides a type-safe container of custom metadata values
// that can be attached to a resolved VIP address, such as an availability
// zone hint from a host-listener implementation. Consumers declare a
// strongly-typed key with NewKey and read it back with GetValue.
package attrs

// Values is a collection of type-safe metadata values, keyed by an
// opaque *Key[T].
type Values struct {
	data map[any]any
}

// NewValues creates a new Values object from the given key/value pairs,
// each produced by a Key's Value method.
func NewValues(values ...Value) Values {
	data := make(map[any]any, len(values))
	for _, v := range values {
		data[v.key] = v.value
	}
	return Values{data: data}
}

// Key is a metadata key. Each call to NewKey produces a distinct key,
// even for the same type T, since keys are identified by their address.
type Key[T any] struct {
	_ bool
}

// NewKey returns a new key for values of type T.
func NewKey[T any]() *Key[T] {
	return new(Key[T])
}

// Value constructs a Value pairing this key with the given value.
func (k *Key[T]) Value(value T) Value {
	return Value{key: k, value: value}
}

// Value is a single key/value metadata pair.
type Value struct {
	key, value any
}

// GetValue retrieves a value from Values. If the key is absent, it
// returns the zero value and false.
func GetValue[T any](values Values, key *Key[T]) (value T, ok bool) {
	raw, ok := values.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	tval, ok := raw.(T)
	return tval, ok
}
