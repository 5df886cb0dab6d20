/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

// Package testmodels holds shared fixtures for adapter tests.
package testmodels

import (
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/syntrodata/batchstore/registry"
	"github.com/syntrodata/batchstore/storage"
)

// Account is the fixture entity used by the adapter integration tests.
type Account struct {

	// Unique identifier for the account.
	// Required: true
	ID *string `json:"id"`

	// Login email, unique per account.
	// Required: true
	Email *string `json:"email"`

	// Display name.
	Name string `json:"name,omitempty"`

	// Timestamp when the account was created.
	// Format: date-time
	CreatedAt *strfmt.DateTime `json:"createdAt,omitempty"`

	// Timestamp when the account was last updated.
	// Format: date-time
	UpdatedAt *strfmt.DateTime `json:"updatedAt,omitempty"`
}

// AccountModelInfo returns the metadata registered for Account fixtures.
func AccountModelInfo() *registry.ModelInfo {
	return &registry.ModelInfo{
		Name:              "Account",
		TableName:         "accounts",
		UniqueConstraints: [][]string{{"email"}},
		IndexMap: map[string]string{
			"PK": "ACCOUNT#{id}",
			"SK": "ACCOUNT#{id}",
		},
	}
}

// NewAccountRecord builds an account record with timestamps set to now.
func NewAccountRecord(id, email, name string) storage.Record {
	now := strfmt.DateTime(time.Now().UTC())
	return storage.Record{
		"id":        id,
		"email":     email,
		"name":      name,
		"createdAt": now.String(),
		"updatedAt": now.String(),
	}
}
