// Package pool implements a type-safe object pooling system used on caar's
// parsing and encoding hot paths. It provides unified memory management for
// reusable objects, reducing garbage collection pressure when millions of
// raw rows flow through a conversion.
//
// Architecture
//
// The pool package uses Go generics to provide type-safe pooling for any
// object type. It builds on sync.Pool but adds statistics and reset hooks.
//
// Core Types:
//
//   - Pool[T]: Generic pool implementation for any type T
//   - BufferPool: Size-bucketed byte buffers for I/O
//   - Global pools: Pre-configured pools for field slices and row batches
//
// Usage Patterns
//
// Basic pool usage:
//
//	fields := pool.GetFieldSlice()
//	defer pool.PutFieldSlice(fields)
//
//	fields = append(fields, "1298509", "2012-01-01 00:03:40", "Cool")
//
// Creating a custom pool:
//
//	type scratch struct {
//		rows [][]string
//	}
//
//	scratchPool := pool.New(
//		func() *scratch { return &scratch{rows: make([][]string, 0, 1024)} },
//		func(s *scratch) { s.rows = s.rows[:0] },
//	)
//
// Guidelines
//
// 1. Always release objects back to pools
// 2. Reset objects properly to avoid data leaks
// 3. Avoid holding pool objects across goroutines
// 4. Use pool statistics to spot leaks
package pool
