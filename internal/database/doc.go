// Package database manages the Postgres connection pool backing the optional
// feed archive.
package database
