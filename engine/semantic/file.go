package semantic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Artifact layout: little-endian header `dim uint32, count uint32` followed by
// count*dim IEEE 754 float32 values. An empty index is dim=0, count=0.

// Load reads an index artifact from r.
func Load(r io.Reader) (*Index, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("semantic: read header: %w", err)
	}
	dim := binary.LittleEndian.Uint32(header[0:4])
	count := binary.LittleEndian.Uint32(header[4:8])

	if count == 0 {
		return &Index{}, nil
	}
	if dim == 0 {
		return nil, fmt.Errorf("semantic: artifact declares %d vectors with dimension 0", count)
	}

	payload := make([]byte, int(count)*int(dim)*4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("semantic: read %d vectors: %w", count, err)
	}

	vecs := make([][]float32, count)
	off := 0
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}
		vecs[i] = v
	}
	return &Index{dim: int(dim), vecs: vecs}, nil
}

// LoadFile reads an index artifact from path. A missing artifact is a fatal
// startup condition for callers; no fallback exists here.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("semantic: open index artifact: %w", err)
	}
	defer f.Close()
	return Load(bufio.NewReader(f))
}

// Write serializes vectors to w in the artifact layout. It exists for the
// external index build step and for test fixtures; this package never writes
// at query time.
func Write(w io.Writer, vecs [][]float32) error {
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(dim))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(vecs)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("semantic: write header: %w", err)
	}

	var buf [4]byte
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("semantic: inconsistent vector dims %d vs %d at id %d", len(v), dim, i)
		}
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(x))
			if _, err := w.Write(buf[:]); err != nil {
				return fmt.Errorf("semantic: write vector %d: %w", i, err)
			}
		}
	}
	return nil
}

// WriteFile serializes vectors to path.
func WriteFile(path string, vecs [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("semantic: create index artifact: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, vecs); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("semantic: flush index artifact: %w", err)
	}
	return f.Close()
}
