// Package cir is the mid-level IR produced by code generation: physical
// types interned in a Context, constant attributes, operations grouped in
// blocks and functions, and module-level globals.
//
// Types and attributes are uniqued by structural key, so two handles are
// equal exactly when the values they denote are equal. Named records are
// the exception: they are created incomplete and completed once.
package cir
