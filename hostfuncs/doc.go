// Package hostfuncs implements the host functions guests call and the
// fetchers that serve their requests. Nothing here depends on a WASM
// runtime; infrastructure/wazero adapts the registry to wazero.
//
// Guests start requests with fetch_start and drop them with fetch_release.
// Each started request is a bridge.Bridge held in a BridgeSet; its response
// is delivered later through the ResponderFactory found in the call context.
package hostfuncs
