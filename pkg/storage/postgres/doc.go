// Package postgres holds the PostgreSQL plumbing shared by the loader field
// stores: the primary/replica connection manager, SQLSTATE classification
// and a transaction helper.
package postgres
