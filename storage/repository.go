// Package storage provides the storage abstraction for small persisted client records.
package storage

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository stores opaque records grouped into buckets.
// Implementations must return copies so callers cannot alias stored bytes.
type Repository interface {
	Put(bucket string, key string, value []byte) error
	Get(bucket string, key string) ([]byte, error)
	Delete(bucket string, key string) error
	List(bucket string) ([]string, error)
}
