// Package postgres provides the PostgreSQL implementation of the job store,
// the embedded schema migrations it depends on, and the mapping from
// PostgreSQL errors onto the store package's error taxonomy.
package postgres
