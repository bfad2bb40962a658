//go:build linux || darwin

package mmap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func cycleFileContent(rows int) string {
	var sb strings.Builder
	sb.WriteString("ThermostatId|CycleType|StartTime|EndTime\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%d|Cool|2012-01-01 %02d:03:40|2012-01-01 %02d:15:20\n",
			1298509+i%7, i%24, i%24)
	}
	return sb.String()
}

func TestReaderReadAll(t *testing.T) {
	content := cycleFileContent(100)
	path := writeTestFile(t, "cycles.txt", content)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error: %v", err)
	}
	defer r.Close()

	if r.Size() != int64(len(content)) {
		t.Errorf("Size() = %d, expected %d", r.Size(), len(content))
	}

	data := r.ReadAll()
	if !bytes.Equal(data, []byte(content)) {
		t.Error("ReadAll() returned different bytes than the file content")
	}

	bytesRead, pagesRead := r.Stats()
	if bytesRead != int64(len(content)) {
		t.Errorf("Stats() bytesRead = %d, expected %d", bytesRead, len(content))
	}
	if pagesRead == 0 {
		t.Error("Stats() pagesRead = 0, expected > 0")
	}
}

func TestReaderEmptyFile(t *testing.T) {
	path := writeTestFile(t, "empty.txt", "")

	if _, err := NewReader(path); err == nil {
		t.Error("NewReader() on empty file should fail")
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("NewReader() on missing file should fail")
	}
}

func TestReaderReadRange(t *testing.T) {
	content := "0123456789"
	path := writeTestFile(t, "digits.txt", content)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error: %v", err)
	}
	defer r.Close()

	tests := []struct {
		name     string
		offset   int64
		length   int64
		expected string
		wantErr  bool
	}{
		{"middle", 2, 5, "23456", false},
		{"start", 0, 3, "012", false},
		{"truncated past end", 7, 100, "789", false},
		{"negative offset", -1, 5, "", true},
		{"offset past end", 10, 1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ReadRange(tt.offset, tt.length)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ReadRange(%d, %d) expected error", tt.offset, tt.length)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadRange(%d, %d) error: %v", tt.offset, tt.length, err)
			}
			if string(got) != tt.expected {
				t.Errorf("ReadRange(%d, %d) = %q, expected %q", tt.offset, tt.length, got, tt.expected)
			}
		})
	}
}

func TestProcessParallel(t *testing.T) {
	content := cycleFileContent(5000)
	path := writeTestFile(t, "cycles.txt", content)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error: %v", err)
	}
	defer r.Close()

	var total int64
	err = r.ProcessParallel(func(chunk []byte, offset int64) error {
		atomic.AddInt64(&total, int64(len(chunk)))
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessParallel() error: %v", err)
	}

	if total != int64(len(content)) {
		t.Errorf("processed %d bytes, expected %d", total, len(content))
	}
}

func TestProcessParallelError(t *testing.T) {
	path := writeTestFile(t, "cycles.txt", cycleFileContent(100))

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error: %v", err)
	}
	defer r.Close()

	wantErr := fmt.Errorf("bad chunk")
	err = r.ProcessParallel(func(chunk []byte, offset int64) error {
		return wantErr
	})
	if err == nil {
		t.Error("ProcessParallel() expected processor error to propagate")
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int64
	}{
		{"trailing newline", "a\nb\nc\n", 3},
		{"no trailing newline", "a\nb\nc", 3},
		{"single line", "only one line", 1},
		{"header plus rows", cycleFileContent(250), 251},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, "lines.txt", tt.content)
			got, err := CountLines(path)
			if err != nil {
				t.Fatalf("CountLines() error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("CountLines() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestLineReaderBatches(t *testing.T) {
	content := cycleFileContent(24) // header + 24 rows
	path := writeTestFile(t, "cycles.txt", content)

	lr, err := NewLineReader(path, 10)
	if err != nil {
		t.Fatalf("NewLineReader() error: %v", err)
	}
	defer lr.Close()

	var sizes []int
	var lineCount int
	for {
		batch, err := lr.ReadBatch()
		if err != nil {
			t.Fatalf("ReadBatch() error: %v", err)
		}
		if batch == nil {
			break
		}
		sizes = append(sizes, len(batch))
		lineCount += len(batch)
	}

	if lineCount != 25 {
		t.Errorf("read %d lines, expected 25", lineCount)
	}
	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Errorf("batch sizes = %v, expected [10 10 5]", sizes)
	}
}

func TestLineReaderReset(t *testing.T) {
	path := writeTestFile(t, "cycles.txt", cycleFileContent(5))

	lr, err := NewLineReader(path, 3)
	if err != nil {
		t.Fatalf("NewLineReader() error: %v", err)
	}
	defer lr.Close()

	first, err := lr.ReadBatch()
	if err != nil {
		t.Fatalf("ReadBatch() error: %v", err)
	}

	lr.Reset()

	again, err := lr.ReadBatch()
	if err != nil {
		t.Fatalf("ReadBatch() after Reset error: %v", err)
	}

	if len(first) != len(again) {
		t.Fatalf("batch sizes differ after Reset: %d vs %d", len(first), len(again))
	}
	for i := range first {
		if !bytes.Equal(first[i], again[i]) {
			t.Errorf("line %d differs after Reset: %q vs %q", i, first[i], again[i])
		}
	}
}

func TestParallelRowReader(t *testing.T) {
	rows := 2500
	path := writeTestFile(t, "cycles.txt", cycleFileContent(rows))

	prr, err := NewParallelRowReader(path, '|', 4)
	if err != nil {
		t.Fatalf("NewParallelRowReader() error: %v", err)
	}
	defer prr.Close()

	all, err := prr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}

	if len(all) != rows+1 {
		t.Fatalf("ReadAll() returned %d rows, expected %d", len(all), rows+1)
	}

	header := all[0]
	if len(header) != 4 || header[0] != "ThermostatId" || header[3] != "EndTime" {
		t.Errorf("header = %v, expected 4 fields starting with ThermostatId", header)
	}

	// File order must survive parallel batch reassembly.
	for i, row := range all[1:] {
		if len(row) != 4 {
			t.Fatalf("row %d has %d fields, expected 4", i, len(row))
		}
		expectedID := fmt.Sprintf("%d", 1298509+i%7)
		if row[0] != expectedID {
			t.Fatalf("row %d id = %q, expected %q", i, row[0], expectedID)
		}
		if row[1] != "Cool" {
			t.Fatalf("row %d mode = %q, expected Cool", i, row[1])
		}
	}
}

func TestParallelRowReaderSingleColumn(t *testing.T) {
	path := writeTestFile(t, "single.txt", "alpha\nbeta\ngamma\n")

	prr, err := NewParallelRowReader(path, ',', 2)
	if err != nil {
		t.Fatalf("NewParallelRowReader() error: %v", err)
	}
	defer prr.Close()

	all, err := prr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ReadAll() returned %d rows, expected 3", len(all))
	}
	if len(all[0]) != 1 || all[0][0] != "alpha" {
		t.Errorf("row 0 = %v, expected [alpha]", all[0])
	}
}

func BenchmarkParallelRowReader(b *testing.B) {
	content := cycleFileContent(20000)
	path := filepath.Join(b.TempDir(), "cycles.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(content)))
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		prr, err := NewParallelRowReader(path, '|', 0)
		if err != nil {
			b.Fatal(err)
		}
		rows, err := prr.ReadAll()
		if err != nil {
			b.Fatal(err)
		}
		if len(rows) == 0 {
			b.Fatal("no rows")
		}
		prr.Close()
	}
}
