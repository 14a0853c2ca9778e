// Package index defines the uniform contract vector index backends
// implement, and the key addressing scheme the registry builds them by.
//
// Three backends satisfy the contract:
//
//   - flat: exact brute-force scan, 100% recall
//   - hnsw: in-memory HNSW graph for fast approximate search
//   - usearch: the unum-cloud usearch library (requires cgo)
//
// # Keys
//
// An index is addressed by the triple (algorithm, dimension, metric):
//
//	key := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 128, Metric: index.MetricL2}
//
// Distinct triples are independent indexes. Key.Validate rejects
// unknown algorithms, non-positive dimensions and unknown metrics.
//
// # Metrics
//
// Backends order results ascending, nearest first:
//
//   - MetricL2: (squared) Euclidean distance
//   - MetricInnerProduct: inner-product similarity, stored negated so
//     ascending order still means most similar first
//
// Not every backend serves every metric; construction fails with
// ErrUnsupportedMetric where the combination is not available.
//
// # Filtered Search
//
// SearchFiltered narrows results to ids passing a FilterFunc. The flat
// backend evaluates the predicate inside its scan and stays exact;
// graph backends search an oversampled candidate pool (CandidatePool)
// and drop rejected ids, so highly selective predicates may yield
// fewer than k results.
package index
