// Package vcard implements the contact record model used by cardq.
//
// A Card is an ordered list of properties plus optional nested components.
// Property values are kept in their escaped wire form (after line unfolding)
// so that parsing and serializing an unchanged card is stable. Accessors such
// as Parts and Value decode the wire form on demand according to the value
// kind of the property.
//
// Two encodings are supported:
//
//   - vCard text (versions 2.1, 3.0 and 4.0), see ParseText and Serialize.
//   - jCard JSON (RFC 7095), see ParseJSON and MarshalJSON.
//
// Read detects the encoding from the first significant byte.
package vcard
