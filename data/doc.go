// Package data declares the record shapes stored by rowstore.
//
// Each shape is a plain struct whose `row` tags drive rowcodec schema
// derivation. The codec for each shape is derived once, when this package
// is initialized, and shared by every caller:
//
//	c := data.CandidateData{Label: 123, Vector: []float32{1, 2, 3}}
//	b, _ := c.Serialize()
//	got, _ := data.CandidateFromBytes(b)
//
// Field order is the binary layout. New fields may only be appended, and
// the integer values of DeltaType must never change once rows are persisted.
package data
