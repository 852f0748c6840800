package zarr

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeGroup(t *testing.T, dir string, attrs map[string]any) {
	t.Helper()
	writeJSON(t, filepath.Join(dir, "zarr.json"), map[string]any{
		"zarr_format": 3,
		"node_type":   "group",
		"attributes":  attrs,
	})
}

// writeUint8Array writes a C-ordered uint8 array whose element value is
// produced by value(index). Chunks for which skip returns true are omitted.
func writeUint8Array(t *testing.T, dir string, shape, chunks []int, compress bool, value func(idx []int) byte, skip func(chunk []int) bool) {
	t.Helper()
	writeUint8ArrayKeyed(t, dir, "default", "/", shape, chunks, compress, value, skip)
}

// writeUint8ArrayKeyed is writeUint8Array with an explicit chunk key encoding.
func writeUint8ArrayKeyed(t *testing.T, dir, encoding, sep string, shape, chunks []int, compress bool, value func(idx []int) byte, skip func(chunk []int) bool) {
	t.Helper()
	codecs := []map[string]any{{"name": "bytes", "configuration": map[string]any{"endian": "little"}}}
	if compress {
		codecs = append(codecs, map[string]any{"name": "zstd", "configuration": map[string]any{"level": 0}})
	}
	writeJSON(t, filepath.Join(dir, "zarr.json"), map[string]any{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       shape,
		"data_type":   "uint8",
		"chunk_grid": map[string]any{
			"name":          "regular",
			"configuration": map[string]any{"chunk_shape": chunks},
		},
		"chunk_key_encoding": map[string]any{
			"name":          encoding,
			"configuration": map[string]any{"separator": sep},
		},
		"fill_value": 7,
		"codecs":     codecs,
	})

	var enc *zstd.Encoder
	if compress {
		var err error
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		defer enc.Close()
	}

	nd := len(shape)
	grid := make([]int, nd)
	for d := range shape {
		grid[d] = ceilDiv(shape[d], chunks[d])
	}
	forEach(grid, func(ci []int) {
		if skip != nil && skip(ci) {
			return
		}
		// Edge chunks are padded to the full chunk shape.
		buf := make([]byte, product(chunks))
		forEach(chunks, func(li []int) {
			gi := make([]int, nd)
			off := 0
			for d := range li {
				gi[d] = ci[d]*chunks[d] + li[d]
				off = off*chunks[d] + li[d]
			}
			for d := range gi {
				if gi[d] >= shape[d] {
					return
				}
			}
			buf[off] = value(gi)
		})
		if enc != nil {
			buf = enc.EncodeAll(buf, nil)
		}
		var parts []string
		if encoding != "v2" {
			parts = append(parts, "c")
		}
		for _, v := range ci {
			parts = append(parts, strconv.Itoa(v))
		}
		p := filepath.Join(dir, filepath.FromSlash(strings.Join(parts, sep)))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, buf, 0o644); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	})
}

// forEach visits every index of an n-dimensional box in C order.
func forEach(shape []int, fn func([]int)) {
	idx := make([]int, len(shape))
	for {
		fn(append([]int(nil), idx...))
		d := len(shape) - 1
		for d >= 0 {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			return
		}
	}
}

// pixel is the value stored at (c, y, x) in test images.
func pixel(idx []int) byte {
	return byte(idx[0]*100 + idx[1]*10 + idx[2])
}

// writeImage writes a cyx multiscale image of base size w x h with levels
// halving in size.
func writeImage(t *testing.T, dir string, channels, w, h, levels int, compress bool) {
	t.Helper()
	var datasets []map[string]any
	for i := 0; i < levels; i++ {
		datasets = append(datasets, map[string]any{"path": strconv.Itoa(i)})
		lw, lh := max(w>>i, 1), max(h>>i, 1)
		writeUint8Array(t, filepath.Join(dir, strconv.Itoa(i)), []int{channels, lh, lw}, []int{1, 4, 4}, compress, pixel, nil)
	}
	writeGroup(t, dir, map[string]any{
		"ome": map[string]any{
			"version": "0.5",
			"multiscales": []map[string]any{{
				"name": "image",
				"axes": []map[string]any{
					{"name": "c", "type": "channel"},
					{"name": "y", "type": "space"},
					{"name": "x", "type": "space"},
				},
				"datasets": datasets,
			}},
		},
	})
}
