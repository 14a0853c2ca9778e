// Package vecd is an embeddable vector database that coordinates
// multiple approximate-nearest-neighbor backends behind one mutation
// and search surface.
//
// Indexes are addressed by the triple (algorithm, dimension, metric).
// Creating the same triple twice is a no-op; distinct triples are
// independent indexes. Record ids are global: upserting an id stores
// its document, indexes the vector from the document's "vectors"
// field, and makes the remaining integer fields filterable.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	db, _ := vecd.New()
//	defer db.Close()
//
//	key := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 3, Metric: index.MetricL2}
//	_ = db.CreateIndex(ctx, key)
//
//	_ = db.Upsert(ctx, key, 1, metadata.Document{
//	    "vectors": []float32{1, 2, 3},
//	    "age":     int64(30),
//	})
//
//	results, _ := db.Search(key, []float32{1, 2, 3}).
//	    KNN(10).
//	    Eq("age", 30).
//	    Execute(ctx)
//
// # Durability
//
// Documents can be kept in memory (default) or in an embedded badger
// store via WithScalarStore. Full state travels through snapshots:
// Snapshot/Restore stream an archive that rebuilds every index from
// the stored documents, so archives are portable across backends and
// releases.
package vecd
