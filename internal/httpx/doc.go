// Package httpx provides the shared HTTP machinery for REST connectors:
// a rate-limited retrying client, pluggable authentication strategies and
// a nextLink continuation paginator.
package httpx
