//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of the
// authkit CredentialStore. It supports multi-tenancy through Datastore
// namespaces.
//
// # Datastore Kinds
//
// The package uses a single kind:
//   - Credential: user accounts keyed by email, including password hash,
//     OTP challenge state and refresh token set
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewCredentialStore(client, "")  // default namespace
package gae
