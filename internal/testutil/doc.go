// Package testutil provides fixtures shared by tests: a stand-in compiler
// driver, throwaway mTLS certificates and a concurrency-safe buffer.
package testutil
