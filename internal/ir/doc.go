// Package ir provides the value and message types shared by the flow runtime.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Event data, command data and saga state are IRObject values, never
//     arbitrary Go structs, so they can be deep-copied, merged and
//     canonically serialized
//   - Persisted values always go through MarshalCanonical
//   - JSON field names follow the upstream wire format (camelCase)
package ir
