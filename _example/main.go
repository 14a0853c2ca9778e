package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hupe1980/vecd"
	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
	"github.com/hupe1980/vecd/testutil"
)

func main() {
	ctx := context.Background()

	seed := int64(4711)
	dim := 32
	size := 50000
	k := 10

	db, err := vecd.New()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	hnswKey := index.Key{Algorithm: index.AlgorithmHNSW, Dimension: dim, Metric: index.MetricL2}
	flatKey := index.Key{Algorithm: index.AlgorithmFlat, Dimension: dim, Metric: index.MetricL2}

	if err := db.CreateIndex(ctx, hnswKey); err != nil {
		log.Fatal(err)
	}
	if err := db.CreateIndex(ctx, flatKey, func(o *vecd.CreateIndexOptions) {
		o.Capacity = size
	}); err != nil {
		log.Fatal(err)
	}

	rng := testutil.NewRNG(seed)
	vectors := rng.UniformVectors(size, dim)

	items := make([]vecd.UpsertItem, size)
	for i, v := range vectors {
		items[i] = vecd.UpsertItem{
			ID:       uint64(i + 1),
			Document: metadata.Document{"vectors": v, "bucket": i % 100},
		}
	}

	query := make([]float32, dim)
	rng.FillUniform(query)

	fmt.Println("--- Insert ---")
	fmt.Println("Dimension:", dim)
	fmt.Println("Size:", size)

	start := time.Now()

	if result := db.BatchUpsert(ctx, hnswKey, items); result.Failed > 0 {
		log.Fatal(result.FirstError())
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- KNN (hnsw) ---")

	start = time.Now()

	result, err := db.KNNSearch(ctx, hnswKey, query, k)
	if err != nil {
		log.Fatal(err)
	}

	elapsed := time.Since(start)

	printResult(result)
	fmt.Printf("Seconds: %.8f\n\n", elapsed.Seconds())

	// Ids are global, so reusing them would move the records out of the
	// graph index. A second id range holds the same vectors exactly.
	for i := range items {
		items[i].ID += uint64(size)
	}

	if result := db.BatchUpsert(ctx, flatKey, items); result.Failed > 0 {
		log.Fatal(result.FirstError())
	}

	fmt.Println("--- Exact (flat) ---")

	start = time.Now()

	result, err = db.KNNSearch(ctx, flatKey, query, k)
	if err != nil {
		log.Fatal(err)
	}

	elapsed = time.Since(start)

	printResult(result)
	fmt.Printf("Seconds: %.8f\n", elapsed.Seconds())
}

func printResult(result []vecd.SearchResult) {
	for _, r := range result {
		fmt.Printf("ID: %d, Distance: %.2f, Bucket: %v\n", r.ID, r.Distance, r.Document["bucket"])
	}
}
