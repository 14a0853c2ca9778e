// Package metadata models the JSON documents stored next to vectors and the
// inverted index used to filter search results by document fields.
//
// # Documents
//
// A Document is a decoded JSON object. The reserved "vectors" field carries
// the embedding; every other top-level field with an integral numeric value
// is eligible for filtering:
//
//	doc := metadata.Document{
//	    "name":    "sora",
//	    "age":     int64(30),
//	    "vectors": []float32{1, 2, 3},
//	}
//
// # Filter Index
//
// The FilterIndex keeps one Roaring Bitmap per (field, value) pair. Filters
// compile to set operations over those bitmaps:
//
//	allowed, err := fi.Eval([]metadata.Filter{
//	    {Field: "age", Operator: metadata.OpEqual, Value: 30},
//	})
//
// Multiple filters AND together. Updates are atomic per field: a reader
// never observes the same record under two values of one field.
package metadata
