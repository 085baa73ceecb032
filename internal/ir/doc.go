// Package ir provides the data model and message types for poolproxy.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal except amount. This keeps the
// message schema the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - amounts are amount.Uint128 decimal strings
//   - All JSON tags use snake_case, unions are externally tagged
//   - Continuation payloads are stored as canonical JSON (MarshalCanonical)
//   - Timestamps are nanoseconds since the Unix epoch
package ir
