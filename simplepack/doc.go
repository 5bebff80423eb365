// Package simplepack packs and unpacks message payloads against an ordered field-type schema.
//
// A Schema is an ordered list of FieldType values. Each field is encoded back to back with no
// padding or tags:
//
//   - Int8, UInt8: 1 byte
//   - Int16, UInt16: 2 bytes, big-endian
//   - Int32, UInt32: 4 bytes, big-endian
//   - Float32: 4 bytes, IEEE 754, big-endian
//   - String: 1 length byte (0-255) followed by that many raw bytes
//
// Unpack is strict: it bounds-checks every field before reading it and fails with
// ErrTruncatedFrame when the buffer is short, or ErrTrailingBytes when bytes are left over.
//
// Some messages carry a trailing field whose type depends on a value decoded earlier in the same
// message. Those are decoded in two passes:
//
//	header := simplepack.New(simplepack.UInt8, simplepack.UInt8, simplepack.UInt8)
//	values, _, err := header.UnpackPrefix(frame) // first pass, trailing bytes allowed
//	// ... pick valueType from values ...
//	full := header.Extend(valueType)             // new schema, header is untouched
//	values, err = full.Unpack(frame)             // second pass, exact
package simplepack
