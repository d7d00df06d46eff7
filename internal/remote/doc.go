// Package remote provides Remote Store implementations: a Cloud Firestore
// adapter and a thread-safe in-memory store used for tests and offline runs.
package remote
