// Package diag carries user-facing diagnostics out of layout and code
// generation. Codegen never formats or prints; it reports through a
// Reporter and keeps going where it can.
//
// Code ranges:
//
//	1000-1999  LAY  record layout
//	2000-2999  CST  constant emission
//	3000-3999  EMT  aggregate and scalar emission
//	4000-4999  UNT  translation-unit input
//	5000-5999  CFG  configuration
//	9000-9999  NYI  features that are recognised but not implemented
package diag
