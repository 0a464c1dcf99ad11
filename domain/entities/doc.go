// Package entities provides the core domain types of the fetch bridge.
// These types double as the JSON wire format exchanged with WASM guests.
package entities
