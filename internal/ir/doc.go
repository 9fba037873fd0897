// Package ir provides the shared domain types for micruler.
//
// This package contains type definitions and identity hashing only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Facts are values; identity is the canonical hash of every field
//   - Rules are static after compilation and never mutated at runtime
//   - Conditions are a sealed tagged variant (All/Any/Not/Test/Match/ValueIn)
//   - All JSON tags use snake_case
package ir
