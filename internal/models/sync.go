// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package models

// UpsertAction is the result of writing a single remote entity.
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
)

// ItemError describes one item of a batch that could not be written.
type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`

	// MissingParent marks an item rejected because its parent is not
	// stored yet. Job-chained syncs retry such batches.
	MissingParent bool `json:"missing_parent,omitempty"`
}

// BatchResult summarizes a batch upsert. A failed item never aborts the batch.
type BatchResult struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// Record counts one successful upsert.
func (r *BatchResult) Record(action UpsertAction) {
	switch action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	}
}

// Fail records a per-item error.
func (r *BatchResult) Fail(id string, err error) {
	r.Errors = append(r.Errors, ItemError{ID: id, Message: err.Error()})
}

// MissingParents counts items rejected for a missing parent.
func (r BatchResult) MissingParents() int {
	n := 0
	for _, e := range r.Errors {
		if e.MissingParent {
			n++
		}
	}
	return n
}

// Merge folds other into r.
func (r *BatchResult) Merge(other BatchResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Errors = append(r.Errors, other.Errors...)
}

// Total returns the number of items attempted.
func (r BatchResult) Total() int {
	return r.Created + r.Updated + len(r.Errors)
}

// SyncRequest starts a hierarchy sync, from the scheduler or an operator.
type SyncRequest struct {
	// PageID is the page (or ad account) to walk. Empty walks every page the
	// credential can see.
	PageID string `json:"pageId" validate:"omitempty,max=64,graphid"`

	// UserID selects a stored per-user credential. Empty uses the privileged account.
	UserID string `json:"userId,omitempty" validate:"omitempty,max=128"`

	// UseJobChaining runs child steps as durable jobs instead of inline.
	UseJobChaining bool `json:"useJobChaining"`
}
