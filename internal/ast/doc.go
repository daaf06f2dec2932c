// Package ast holds the resolved, type-checked input of code generation:
// expressions as a closed set of kinds with per-kind payloads, evaluated
// constants, and the declarations of a translation unit.
package ast
