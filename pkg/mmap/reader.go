// Package mmap provides memory-mapped file access for scanning large
// delimited observation files without per-read syscalls or buffer copies.
package mmap

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Reader provides read-only memory-mapped access to a file.
type Reader struct {
	file     *os.File
	data     []byte
	fileSize int64
	pageSize int

	// Prefetch control
	prefetch bool

	// Parallel processing
	numWorkers int
	chunkSize  int64

	// Stats
	bytesRead int64
	pagesRead int64

	mu sync.RWMutex
}

// NewReader memory-maps the named file for reading.
func NewReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fileSize := stat.Size()
	if fileSize == 0 {
		file.Close()
		return nil, fmt.Errorf("file is empty")
	}

	data, err := mmap(int(file.Fd()), 0, int(fileSize), ProtRead, MapShared)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	// Observation files are scanned front to back; the advice is best-effort.
	_ = madvise(data, MadvSequential)

	pageSize := os.Getpagesize()

	return &Reader{
		file:       file,
		data:       data,
		fileSize:   fileSize,
		pageSize:   pageSize,
		prefetch:   true,
		numWorkers: runtime.NumCPU(),
		chunkSize:  1024 * 1024, // 1MB chunks
	}, nil
}

// Size returns the mapped file size in bytes.
func (r *Reader) Size() int64 {
	return r.fileSize
}

// ReadAll returns the entire mapped region. The slice aliases the mapping
// and is valid only until Close.
func (r *Reader) ReadAll() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.prefetch {
		r.prefetchRange(0, r.fileSize)
	}

	atomic.StoreInt64(&r.bytesRead, r.fileSize)
	atomic.StoreInt64(&r.pagesRead, (r.fileSize+int64(r.pageSize)-1)/int64(r.pageSize))

	return r.data
}

// ReadRange returns a slice of the mapping covering [offset, offset+length).
// Ranges extending past the end of the file are truncated.
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 || offset >= r.fileSize {
		return nil, fmt.Errorf("offset %d out of range [0, %d)", offset, r.fileSize)
	}

	end := offset + length
	if end > r.fileSize {
		end = r.fileSize
	}

	if r.prefetch {
		r.prefetchRange(offset, end)
	}

	atomic.AddInt64(&r.bytesRead, end-offset)
	atomic.AddInt64(&r.pagesRead, ((end-offset)+int64(r.pageSize)-1)/int64(r.pageSize))

	return r.data[offset:end], nil
}

// ProcessParallel runs processor over fixed-size chunks of the mapping using
// a worker pool. Chunk boundaries are byte offsets, not line boundaries, so
// processors must tolerate rows split across chunks (or operate on bytes).
func (r *Reader) ProcessParallel(processor func(chunk []byte, offset int64) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type work struct {
		offset int64
		length int64
	}

	workChan := make(chan work, r.numWorkers*2)
	errChan := make(chan error, r.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < r.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workChan {
				chunk := r.data[w.offset : w.offset+w.length]

				// Warm the next chunk while this one is processed.
				if r.prefetch && w.offset+w.length < r.fileSize {
					nextOffset := w.offset + w.length
					nextEnd := nextOffset + r.chunkSize
					if nextEnd > r.fileSize {
						nextEnd = r.fileSize
					}
					r.prefetchRange(nextOffset, nextEnd)
				}

				if err := processor(chunk, w.offset); err != nil {
					select {
					case errChan <- err:
					default:
					}
					return
				}
			}
		}()
	}

	for offset := int64(0); offset < r.fileSize; offset += r.chunkSize {
		length := r.chunkSize
		if offset+length > r.fileSize {
			length = r.fileSize - offset
		}

		workChan <- work{offset: offset, length: length}
	}

	close(workChan)
	wg.Wait()

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

// prefetchRange advises the kernel to fault in a page-aligned range.
func (r *Reader) prefetchRange(start, end int64) {
	startPage := (start / int64(r.pageSize)) * int64(r.pageSize)
	endPage := ((end + int64(r.pageSize) - 1) / int64(r.pageSize)) * int64(r.pageSize)

	if endPage > r.fileSize {
		endPage = r.fileSize
	}

	length := endPage - startPage
	if length <= 0 {
		return
	}

	_ = madvise(r.data[startPage:endPage], MadvWillneed)
}

// Close unmaps the file and closes it. Slices returned by ReadAll or
// ReadRange must not be used after Close.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error

	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}

	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.file = nil
	}

	return err
}

// Stats returns the bytes and pages touched through this reader.
func (r *Reader) Stats() (bytesRead, pagesRead int64) {
	return atomic.LoadInt64(&r.bytesRead), atomic.LoadInt64(&r.pagesRead)
}

// CountLines reports the number of lines in the named file. A final line
// without a trailing newline still counts.
func CountLines(filename string) (int64, error) {
	r, err := NewReader(filename)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var count int64
	err = r.ProcessParallel(func(chunk []byte, _ int64) error {
		var n int64
		for _, b := range chunk {
			if b == '\n' {
				n++
			}
		}
		atomic.AddInt64(&count, n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if r.data[r.fileSize-1] != '\n' {
		count++
	}
	return count, nil
}

// LineReader provides batched line scanning over a memory-mapped file.
type LineReader struct {
	reader    *Reader
	data      []byte
	offset    int64
	batchSize int
}

// NewLineReader maps the named file and prepares batched line reads.
func NewLineReader(filename string, batchSize int) (*LineReader, error) {
	reader, err := NewReader(filename)
	if err != nil {
		return nil, err
	}

	return &LineReader{
		reader:    reader,
		data:      reader.ReadAll(),
		offset:    0,
		batchSize: batchSize,
	}, nil
}

// ReadBatch returns up to batchSize lines, each including its trailing
// newline when present. Lines alias the mapping and are valid only until
// Close. A nil batch signals end of file.
func (lr *LineReader) ReadBatch() ([][]byte, error) {
	if lr.data == nil || lr.offset >= int64(len(lr.data)) {
		return nil, nil // EOF
	}

	lines := make([][]byte, 0, lr.batchSize)

	for i := 0; i < lr.batchSize && lr.offset < int64(len(lr.data)); i++ {
		start := lr.offset
		end := lr.offset

		for end < int64(len(lr.data)) && lr.data[end] != '\n' {
			end++
		}

		if end < int64(len(lr.data)) {
			// Include the newline
			end++
		}

		lines = append(lines, lr.data[start:end])
		lr.offset = end
	}

	return lines, nil
}

// Reset rewinds the reader to the start of the file. Sniffing a sample and
// then re-scanning the full file costs nothing extra with a mapped file.
func (lr *LineReader) Reset() {
	lr.offset = 0
}

// Close closes the line reader.
func (lr *LineReader) Close() error {
	if lr.reader != nil {
		return lr.reader.Close()
	}
	return nil
}

// ParallelRowReader splits an unquoted delimited file into rows of fields
// using parallel workers. It is the fast path for observation files whose
// sniffed dialect carries no quote character.
type ParallelRowReader struct {
	reader     *LineReader
	delimiter  byte
	numWorkers int
}

// NewParallelRowReader maps the named file for parallel row splitting.
func NewParallelRowReader(filename string, delimiter byte, numWorkers int) (*ParallelRowReader, error) {
	lineReader, err := NewLineReader(filename, 1000) // 1000 lines per batch
	if err != nil {
		return nil, err
	}

	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &ParallelRowReader{
		reader:     lineReader,
		delimiter:  delimiter,
		numWorkers: numWorkers,
	}, nil
}

// ReadAll splits every line of the file into fields, preserving file order.
// Field strings alias the mapped region and are valid only until Close;
// callers that keep fields must copy them first.
func (prr *ParallelRowReader) ReadAll() ([][]string, error) {
	type result struct {
		index int
		rows  [][]string
	}

	resultChan := make(chan result, prr.numWorkers*2)
	workChan := make(chan struct {
		index int
		lines [][]byte
	}, prr.numWorkers*2)

	var wg sync.WaitGroup

	for i := 0; i < prr.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				rows := make([][]string, len(work.lines))
				for i, line := range work.lines {
					rows[i] = prr.splitLine(line)
				}
				resultChan <- result{index: work.index, rows: rows}
			}
		}()
	}

	go func() {
		index := 0
		for {
			lines, err := prr.reader.ReadBatch()
			if err != nil || len(lines) == 0 {
				break
			}

			workChan <- struct {
				index int
				lines [][]byte
			}{index: index, lines: lines}

			index++
		}
		close(workChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Batches complete out of order; reassemble by index.
	results := make(map[int][][]string)
	maxIndex := -1

	for res := range resultChan {
		results[res.index] = res.rows
		if res.index > maxIndex {
			maxIndex = res.index
		}
	}

	var allRows [][]string
	for i := 0; i <= maxIndex; i++ {
		if rows, ok := results[i]; ok {
			allRows = append(allRows, rows...)
		}
	}

	return allRows, nil
}

// splitLine splits a line on the delimiter without copying field bytes.
func (prr *ParallelRowReader) splitLine(line []byte) []string {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	fields := make([]string, 0, 16)
	start := 0

	for i := 0; i < len(line); i++ {
		if line[i] == prr.delimiter {
			fields = append(fields, unsafeString(line[start:i]))
			start = i + 1
		}
	}

	if start <= len(line) {
		fields = append(fields, unsafeString(line[start:]))
	}

	return fields
}

// unsafeString converts bytes to string without copying
func unsafeString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// Close closes the row reader and invalidates previously returned fields.
func (prr *ParallelRowReader) Close() error {
	return prr.reader.Close()
}
