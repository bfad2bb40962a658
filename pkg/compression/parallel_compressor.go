package compression

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/caar/pkg/errors"
	"github.com/ajitpratap0/caar/pkg/pool"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"
)

// parallelMagic marks a chunked payload. Payloads without the magic are
// treated as a single plain chunk, so DecompressData handles both forms.
const parallelMagic = "CAPC"

// ParallelCompressor compresses large cache payloads in parallel by
// splitting them into chunks and fanning the chunks out to workers.
// Record sets for a full year of cycle data easily reach hundreds of
// megabytes before compression, where single-threaded gzip dominates
// conversion time.
type ParallelCompressor struct {
	logger     *zap.Logger
	algorithm  Algorithm
	level      Level
	numWorkers int
	chunkSize  int

	// Metrics
	bytesProcessed  int64
	chunksProcessed int64

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// CompressedChunk represents a compressed data chunk
type CompressedChunk struct {
	ID         int
	Original   []byte
	Compressed []byte
	Error      error
}

// ParallelConfig configures parallel compression
type ParallelConfig struct {
	Algorithm  Algorithm
	Level      Level
	NumWorkers int // 0 = auto (NumCPU)
	ChunkSize  int // Size of each chunk in bytes
}

// NewParallelCompressor creates a new parallel compressor
func NewParallelCompressor(config ParallelConfig, logger *zap.Logger) *ParallelCompressor {
	if config.NumWorkers == 0 {
		config.NumWorkers = runtime.NumCPU()
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = 1024 * 1024 // 1MB default chunk size
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ParallelCompressor{
		logger:     logger,
		algorithm:  config.Algorithm,
		level:      config.Level,
		numWorkers: config.NumWorkers,
		chunkSize:  config.ChunkSize,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// CompressData compresses data, chunking it across workers when it exceeds
// the chunk size. Small payloads compress directly without framing.
func (pc *ParallelCompressor) CompressData(data []byte) ([]byte, error) {
	if len(data) <= pc.chunkSize {
		// Small data, compress directly
		return pc.compressChunk(data)
	}

	// Split into chunks
	chunks := pc.splitIntoChunks(data)
	numChunks := len(chunks)

	// Create channels for work distribution
	chunkChan := make(chan struct {
		id   int
		data []byte
	}, pc.numWorkers)
	resultChan := make(chan CompressedChunk, numChunks)

	// Start workers
	for i := 0; i < pc.numWorkers; i++ {
		pc.wg.Add(1)
		go pc.compressionWorker(chunkChan, resultChan)
	}

	// Distribute work
	go func() {
		for i, chunk := range chunks {
			select {
			case chunkChan <- struct {
				id   int
				data []byte
			}{i, chunk}:
			case <-pc.ctx.Done():
				close(chunkChan)
				return
			}
		}
		close(chunkChan)
	}()

	// Collect results
	results := make(map[int]CompressedChunk)
	for i := 0; i < numChunks; i++ {
		result := <-resultChan
		if result.Error != nil {
			pc.cancel() // Cancel all workers
			pc.wg.Wait()
			return nil, result.Error
		}
		results[result.ID] = result
	}

	// Wait for workers to finish
	pc.wg.Wait()

	// Combine compressed chunks in order
	var output bytes.Buffer
	output.Grow(len(data)/2 + numChunks*4 + headerSize)

	// Write header with chunk information
	pc.writeHeader(&output, numChunks, len(data))

	// Write compressed chunks
	for i := 0; i < numChunks; i++ {
		chunk := results[i]
		// Write chunk size (4 bytes)
		output.Write([]byte{
			byte(len(chunk.Compressed) >> 24),
			byte(len(chunk.Compressed) >> 16),
			byte(len(chunk.Compressed) >> 8),
			byte(len(chunk.Compressed)),
		})
		// Write compressed data
		output.Write(chunk.Compressed)

		atomic.AddInt64(&pc.bytesProcessed, int64(len(chunk.Original)))
		atomic.AddInt64(&pc.chunksProcessed, 1)
	}

	return output.Bytes(), nil
}

// DecompressData decompresses data produced by CompressData, detecting
// chunked payloads by the leading magic and decompressing plain payloads
// directly.
func (pc *ParallelCompressor) DecompressData(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return pc.decompressChunk(data)
	}

	// Read header
	numChunks, originalSize, hdr := pc.readHeader(data)
	if hdr == 0 {
		// Not chunked, decompress directly
		return pc.decompressChunk(data)
	}

	// Parse compressed chunks
	offset := hdr
	chunks := make([]struct {
		id   int
		data []byte
	}, 0, numChunks)

	for i := 0; i < numChunks; i++ {
		if offset+4 > len(data) {
			return nil, errors.New(errors.ErrorTypeCache, "corrupted compressed payload")
		}

		// Read chunk size
		chunkSize := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4

		if offset+chunkSize > len(data) {
			return nil, errors.New(errors.ErrorTypeCache, "corrupted compressed payload")
		}

		chunks = append(chunks, struct {
			id   int
			data []byte
		}{
			id:   i,
			data: data[offset : offset+chunkSize],
		})
		offset += chunkSize
	}

	// Create channels for parallel decompression
	chunkChan := make(chan struct {
		id   int
		data []byte
	}, pc.numWorkers)
	resultChan := make(chan CompressedChunk, numChunks)

	// Start workers
	for i := 0; i < pc.numWorkers; i++ {
		pc.wg.Add(1)
		go pc.decompressionWorker(chunkChan, resultChan)
	}

	// Distribute work
	go func() {
		for _, chunk := range chunks {
			select {
			case chunkChan <- chunk:
			case <-pc.ctx.Done():
				close(chunkChan)
				return
			}
		}
		close(chunkChan)
	}()

	// Collect results
	results := make(map[int][]byte)
	for i := 0; i < numChunks; i++ {
		result := <-resultChan
		if result.Error != nil {
			pc.cancel()
			pc.wg.Wait()
			return nil, result.Error
		}
		results[result.ID] = result.Original // Decompressed data is in Original field
	}

	// Wait for workers to finish
	pc.wg.Wait()

	// Combine decompressed chunks
	output := make([]byte, 0, originalSize)
	for i := 0; i < numChunks; i++ {
		output = append(output, results[i]...)
	}

	return output, nil
}

// compressionWorker processes compression tasks
func (pc *ParallelCompressor) compressionWorker(
	chunkChan <-chan struct {
		id   int
		data []byte
	},
	resultChan chan<- CompressedChunk) {

	defer pc.wg.Done()

	for chunk := range chunkChan {
		compressed, err := pc.compressChunk(chunk.data)
		resultChan <- CompressedChunk{
			ID:         chunk.id,
			Original:   chunk.data,
			Compressed: compressed,
			Error:      err,
		}
	}
}

// decompressionWorker processes decompression tasks
func (pc *ParallelCompressor) decompressionWorker(
	chunkChan <-chan struct {
		id   int
		data []byte
	},
	resultChan chan<- CompressedChunk) {

	defer pc.wg.Done()

	for chunk := range chunkChan {
		decompressed, err := pc.decompressChunk(chunk.data)
		resultChan <- CompressedChunk{
			ID:       chunk.id,
			Original: decompressed, // Store decompressed in Original
			Error:    err,
		}
	}
}

// compressChunk compresses a single chunk. Results are copied out of any
// scratch buffers before they return to the pool.
func (pc *ParallelCompressor) compressChunk(data []byte) ([]byte, error) {
	switch pc.algorithm {
	case Gzip:
		var buf bytes.Buffer
		buf.Grow(len(data) / 2)
		w, _ := gzip.NewWriterLevel(&buf, mapGzipLevel(pc.level))
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case Snappy:
		return snappy.Encode(nil, data), nil

	case LZ4:
		var buf bytes.Buffer
		buf.Grow(len(data) / 2)
		w := lz4.NewWriter(&buf)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(pc.level))); err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case Zstd:
		var buf bytes.Buffer
		buf.Grow(len(data) / 2)
		encoder, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(mapZstdLevel(pc.level)))
		if err != nil {
			return nil, err
		}
		if _, err := encoder.Write(data); err != nil {
			return nil, err
		}
		if err := encoder.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case S2:
		return s2.EncodeSnappy(nil, data), nil

	default:
		return nil, errors.New(errors.ErrorTypeConfig,
			"unsupported compression algorithm for parallel compression")
	}
}

// decompressChunk decompresses a single chunk
func (pc *ParallelCompressor) decompressChunk(data []byte) ([]byte, error) {
	switch pc.algorithm {
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)

	case Snappy:
		return snappy.Decode(nil, data)

	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)

	case Zstd:
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		return io.ReadAll(decoder)

	case S2:
		return s2.Decode(nil, data)

	default:
		return nil, errors.New(errors.ErrorTypeConfig,
			"unsupported compression algorithm for parallel decompression")
	}
}

// splitIntoChunks splits data into chunks for parallel processing
func (pc *ParallelCompressor) splitIntoChunks(data []byte) [][]byte {
	var chunks [][]byte

	for i := 0; i < len(data); i += pc.chunkSize {
		end := i + pc.chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}

	return chunks
}

// Chunked payload header:
//   - Magic bytes (4): "CAPC"
//   - Version (1): 0x01
//   - Algorithm (1)
//   - NumChunks (2)
//   - OriginalSize (4)
const headerSize = 12

func (pc *ParallelCompressor) writeHeader(output *bytes.Buffer, numChunks, originalSize int) {
	header := pool.GetByteSlice()
	defer pool.PutByteSlice(header)

	header = append(header, parallelMagic...)
	header = append(header, 0x01, pc.algorithmByte())
	header = append(header,
		byte(numChunks>>8),
		byte(numChunks),
		byte(originalSize>>24),
		byte(originalSize>>16),
		byte(originalSize>>8),
		byte(originalSize),
	)
	output.Write(header)
}

func (pc *ParallelCompressor) algorithmByte() byte {
	switch pc.algorithm {
	case Gzip:
		return 1
	case Snappy:
		return 2
	case LZ4:
		return 3
	case Zstd:
		return 4
	case S2:
		return 5
	default:
		return 0
	}
}

// readHeader reads the chunked payload header. A zero headerSize return
// means the data is not chunked.
func (pc *ParallelCompressor) readHeader(data []byte) (numChunks, originalSize, hdr int) {
	if len(data) < headerSize || string(data[0:4]) != parallelMagic {
		return 1, len(data), 0 // Not parallel compressed
	}

	numChunks = int(data[6])<<8 | int(data[7])
	originalSize = int(data[8])<<24 | int(data[9])<<16 | int(data[10])<<8 | int(data[11])

	return numChunks, originalSize, headerSize
}

// GetMetrics returns compression metrics
func (pc *ParallelCompressor) GetMetrics() (bytesProcessed, chunksProcessed int64) {
	return atomic.LoadInt64(&pc.bytesProcessed), atomic.LoadInt64(&pc.chunksProcessed)
}

// Stop stops the parallel compressor
func (pc *ParallelCompressor) Stop() {
	pc.cancel()
	pc.wg.Wait()
}
