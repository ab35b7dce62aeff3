// Package postgres provides PostgreSQL implementations of the store
// interfaces: audio records, processing tasks and their results. It also
// owns the embedded goose migrations for that schema.
package postgres
