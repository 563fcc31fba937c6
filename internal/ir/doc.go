// Package ir provides the literal value trees shared by every dialect.
//
// This package contains value types and their JSON forms only. All other
// internal packages import ir; ir imports nothing internal. This keeps
// literal values the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - IRObject is ordered; parsers keep the written key order
//   - Values are immutable once built; helpers such as IRObject.With copy
//   - Dates, object ids and regexes are first-class values, encoded in JSON
//     with Extended JSON wrappers ({"$date": ...}, {"$oid": ...})
//   - Canonical JSON (sorted keys, NFC strings) is used only for fingerprints
package ir
