// Package pool provides example usage of the unified memory pool system.
package pool_test

import (
	"fmt"
	"sync"

	"github.com/ajitpratap0/caar/pkg/pool"
)

// Example demonstrates basic usage of the global field slice pool.
func Example() {
	// Get a field slice from the pool
	fields := pool.GetFieldSlice()
	defer pool.PutFieldSlice(fields)

	// Append parsed fields
	fields = append(fields, "1298509", "2012-01-01 00:03:40", "Cool")

	fmt.Printf("Fields: %d\n", len(fields))

	// Output:
	// Fields: 3
}

// ExampleNew demonstrates creating and using a generic pool.
func ExampleNew() {
	// Define a simple struct to pool
	type Buffer struct {
		data []byte
	}

	// Create a pool for Buffer objects
	bufferPool := pool.New(
		func() *Buffer {
			return &Buffer{
				data: make([]byte, 0, 1024), // Pre-allocate 1KB
			}
		},
		func(b *Buffer) {
			b.data = b.data[:0] // Reset the buffer
		},
	)

	// Get a buffer from the pool
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	// Use the buffer
	buf.data = append(buf.data, []byte("Hello, caar!")...)
	fmt.Printf("Buffer contains: %s\n", string(buf.data))

	// Output:
	// Buffer contains: Hello, caar!
}

// Example_concurrentUsage demonstrates thread-safe pool usage.
func Example_concurrentUsage() {
	var wg sync.WaitGroup
	rowCount := 0
	var mu sync.Mutex

	// Parse rows concurrently
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			// Get a field slice from the pool
			fields := pool.GetFieldSlice()
			defer pool.PutFieldSlice(fields)

			// Simulate parsing
			fields = append(fields, "1298509", "2012-01-01 00:03:40")

			mu.Lock()
			rowCount++
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	fmt.Printf("Parsed %d rows concurrently\n", rowCount)

	// Output:
	// Parsed 3 rows concurrently
}

// ExampleGetRowBatch shows batch pooling for parsed rows.
func ExampleGetRowBatch() {
	// Get a batch sized for the sample window
	batch := pool.GetRowBatch(1000)
	defer pool.PutRowBatch(batch)

	batch = append(batch, []string{"1298509", "2012-01-01 00:03:40", "Cool"})
	batch = append(batch, []string{"1298509", "2012-01-01 00:15:20", "Cool"})

	fmt.Printf("Batch rows: %d\n", len(batch))

	// Output:
	// Batch rows: 2
}

// ExampleGetByteSlice demonstrates byte slice pool usage for I/O operations.
func ExampleGetByteSlice() {
	// Get a byte slice from the pool (default 1KB)
	buffer := pool.GetByteSlice()
	defer pool.PutByteSlice(buffer)

	// Use the buffer for data
	data := []byte("cleaned records ready for caching")
	buffer = append(buffer, data...)

	fmt.Printf("Buffer content: %s\n", string(buffer))

	// Output:
	// Buffer content: cleaned records ready for caching
}

// ExampleGenerateID shows atomic ID generation for conversion jobs.
func ExampleGenerateID() {
	id := pool.GenerateID("job")

	// IDs are prefix-counter pairs
	fmt.Printf("Has prefix: %v\n", len(id) > 4 && id[:4] == "job-")

	// Output:
	// Has prefix: true
}
