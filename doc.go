// Package vecdir provides an embedded vector database for Go.
//
// A Database keeps named collections of fixed-dimension float32 vectors in a
// blob store, one blob per collection. Each Collection quantizes its vectors
// to fixed-width codes and indexes them for approximate nearest-neighbor
// search.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vecdir.Open(ctx, "./data")
//	defer db.Close()
//
//	shape := vecdir.Shape{Dimension: 128, CodeSize: 32} // 2 bits per component
//	c, _ := vecdir.CreateCollection[uint64](ctx, db, "docs", shape, nil, records)
//
//	hits, _ := c.Search(query, 10)
//	for _, h := range hits {
//	    fmt.Println(h.ID, h.Distance)
//	}
//
// # Mutate, then save
//
// Collections returned by the Database belong to the caller. Changes are not
// written through; call SaveCollection to persist them:
//
//	c, _ := vecdir.GetCollection[uint64](ctx, db, "docs", shape)
//	_ = c.Insert(vecdir.Record[uint64]{ID: 42, Vector: v})
//	_ = vecdir.SaveCollection(ctx, db, "docs", c)
//
// # Storage
//
// Open uses a local directory with atomic temp-file-and-rename writes.
// NewDatabase accepts any blobstore.Store, for example the S3, MinIO,
// BadgerDB or bbolt backends under blobstore/.
//
// # Indexing
//
// With IndexAuto (the default) a collection scans linearly until it holds
// Config.FlatThreshold entries and then builds an HNSW graph, which is kept
// up to date on every insert and persisted with the collection.
package vecdir
