// Package recordlayout lowers source record declarations to physical IR
// record types. For every record it produces a RecordLayout: the complete
// object type, the base-subobject type, member index maps, the bit-field
// table and zero-initializability flags.
//
// Offsets come from the source layout oracle (package layout); this package
// only decides how to represent them: which storage members exist, where
// explicit padding goes, and whether the record must be packed.
package recordlayout
