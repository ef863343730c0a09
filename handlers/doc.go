// Package handlers provides ready-made xmlhub handlers.
//
// Every factory in this package returns a fresh handler per matching element.
// Handlers that produce output share a Lines sink, which serializes records
// written by concurrently processed documents.
package handlers
