// Package postgres implements the lead lease store on PostgreSQL.
//
// Queries are assembled with squirrel using dollar placeholders; id sets
// travel as lib/pq arrays and match with = ANY. The claim predicates mirror
// the SQLite store exactly so both backends agree on when a lease expires.
package postgres
