// Package ports defines the interfaces between the fetch bridge and its
// collaborators: the native file source, the per-kind fetchers, and the host
// execution context with its response entry point.
package ports
