// Package store wraps the bun database behind the persistence surface the
// sync engine and the HTTP routes share. Every multi-row event write runs in
// one transaction so attendees, resources, and occurrences never drift from
// their event row.
package store

import (
	"github.com/uptrace/bun"
)

type Store struct {
	db *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}
