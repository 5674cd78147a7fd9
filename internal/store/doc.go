// Package store holds the persistence vocabulary shared by every job store
// implementation: the error taxonomy, the DBTX abstraction over *sql.DB and
// *sql.Tx, and transaction helpers.
package store
