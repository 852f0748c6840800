// Package zarr reads OME-Zarr v3 image pyramids and HCS plate layouts from
// local disk.
package zarr

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ChunkCache stores decoded chunks. cache.Manager implements it.
type ChunkCache interface {
	GetChunk(key string) ([]byte, bool)
	SetChunk(key string, data []byte)
}

// ZarrV3ArrayMeta represents Zarr v3 array metadata (zarr.json).
type ZarrV3ArrayMeta struct {
	Shape     []int  `json:"shape"`
	DataType  string `json:"data_type"`
	ChunkGrid struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue interface{} `json:"fill_value"`
	Codecs    []struct {
		Name          string                 `json:"name"`
		Configuration map[string]interface{} `json:"configuration"`
	} `json:"codecs"`
	DimensionNames []string `json:"dimension_names,omitempty"`
	ZarrFormat     int      `json:"zarr_format"`
	NodeType       string   `json:"node_type"`
}

// array is one opened Zarr v3 array.
type array struct {
	path       string
	meta       *ZarrV3ArrayMeta
	elemSize   int
	fill       []byte
	compressed bool
	decoder    *zstd.Decoder
	chunks     ChunkCache
}

func openArray(path string, decoder *zstd.Decoder, chunks ChunkCache) (*array, error) {
	meta, err := loadArrayMeta(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load array metadata: %w", err)
	}
	if meta.NodeType != "" && meta.NodeType != "array" {
		return nil, fmt.Errorf("%s is a %s, not an array", path, meta.NodeType)
	}
	if len(meta.Shape) == 0 || len(meta.Shape) != len(meta.ChunkGrid.Configuration.ChunkShape) {
		return nil, fmt.Errorf("invalid zarr metadata: shape %v, chunk_shape %v", meta.Shape, meta.ChunkGrid.Configuration.ChunkShape)
	}
	for d, c := range meta.ChunkGrid.Configuration.ChunkShape {
		if c <= 0 {
			return nil, fmt.Errorf("invalid chunk shape at dim %d: %d", d, c)
		}
	}

	size, err := zarrDTypeSize(meta.DataType)
	if err != nil {
		return nil, err
	}
	fill, err := zarrFillValueBytes(meta)
	if err != nil {
		return nil, err
	}

	a := &array{path: path, meta: meta, elemSize: size, fill: fill, decoder: decoder, chunks: chunks}
	for _, c := range meta.Codecs {
		switch c.Name {
		case "bytes":
			if endian, _ := c.Configuration["endian"].(string); endian == "big" && size > 1 {
				return nil, fmt.Errorf("unsupported big-endian array %s", path)
			}
		case "zstd":
			a.compressed = true
		default:
			return nil, fmt.Errorf("unsupported codec %q in %s", c.Name, path)
		}
	}
	return a, nil
}

// loadArrayMeta loads Zarr v3 array metadata.
func loadArrayMeta(arrayPath string) (*ZarrV3ArrayMeta, error) {
	data, err := os.ReadFile(filepath.Join(arrayPath, "zarr.json"))
	if err != nil {
		return nil, err
	}

	var meta ZarrV3ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (a *array) chunkShape() []int { return a.meta.ChunkGrid.Configuration.ChunkShape }

// readChunk reads and decompresses the chunk stored under chunkKey.
func (a *array) readChunk(chunkKey string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(a.path, filepath.FromSlash(chunkKey)))
	if err != nil {
		return nil, err
	}
	if !a.compressed {
		return raw, nil
	}

	decompressed, err := a.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}
	return decompressed, nil
}

// encodeChunkKey returns the store key of a chunk. The default encoding
// prefixes "c" joined with the separator ("c/0/0" or "c.0.0"); v2 keys have
// no prefix ("0.0" or "0/0"). Only "/" nests directories.
func (a *array) encodeChunkKey(chunkIndices []int) string {
	v2 := a.meta.ChunkKeyEncoding.Name == "v2"
	sep := a.meta.ChunkKeyEncoding.Configuration.Separator
	if sep == "" {
		sep = "/"
		if v2 {
			sep = "."
		}
	}
	parts := make([]string, 0, len(chunkIndices)+1)
	if !v2 {
		parts = append(parts, "c")
	}
	for _, idx := range chunkIndices {
		parts = append(parts, strconv.Itoa(idx))
	}
	return strings.Join(parts, sep)
}

// chunkShapeAt returns the in-bounds extent of a chunk, which is smaller than
// the nominal chunk shape along the trailing edge of the array.
func (a *array) chunkShapeAt(chunkIndices []int) ([]int, error) {
	if len(chunkIndices) != len(a.meta.Shape) {
		return nil, fmt.Errorf("invalid chunk indices: got %d dims, expected %d", len(chunkIndices), len(a.meta.Shape))
	}

	actual := make([]int, len(a.meta.Shape))
	for d := range a.meta.Shape {
		chunkLen := a.chunkShape()[d]
		start := chunkIndices[d] * chunkLen
		if start < 0 || start >= a.meta.Shape[d] {
			return nil, fmt.Errorf("chunk index out of range at dim %d: start=%d shape=%d", d, start, a.meta.Shape[d])
		}
		actual[d] = min(chunkLen, a.meta.Shape[d]-start)
	}
	return actual, nil
}

// readChunkAt returns a decoded chunk and the shape its bytes are laid out
// in. Writers either pad edge chunks to the full chunk shape or truncate
// them; both layouts are accepted.
func (a *array) readChunkAt(chunkIndices []int) ([]byte, []int, error) {
	edge, err := a.chunkShapeAt(chunkIndices)
	if err != nil {
		return nil, nil, err
	}

	key := a.encodeChunkKey(chunkIndices)
	cacheKey := a.path + "|" + key
	data, ok := a.lookup(cacheKey)
	if !ok {
		data, err = a.readChunk(key)
		if errors.Is(err, os.ErrNotExist) {
			// Absent chunks hold only the fill value.
			data = repeatFillBytes(a.fill, product(a.chunkShape()))
		} else if err != nil {
			return nil, nil, err
		}
		if a.chunks != nil {
			a.chunks.SetChunk(cacheKey, data)
		}
	}

	switch len(data) {
	case product(a.chunkShape()) * a.elemSize:
		return data, a.chunkShape(), nil
	case product(edge) * a.elemSize:
		return data, edge, nil
	default:
		return nil, nil, fmt.Errorf("chunk %s of %s has %d bytes, expected %d", key, a.path, len(data), product(a.chunkShape())*a.elemSize)
	}
}

func (a *array) lookup(key string) ([]byte, bool) {
	if a.chunks == nil {
		return nil, false
	}
	return a.chunks.GetChunk(key)
}

func zarrDTypeSize(dataType string) (int, error) {
	switch dataType {
	case "uint8", "int8", "bool":
		return 1, nil
	case "uint16", "int16":
		return 2, nil
	case "float32", "int32", "uint32":
		return 4, nil
	case "uint64", "int64", "float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported zarr data_type: %s", dataType)
	}
}

func zarrFillValueBytes(meta *ZarrV3ArrayMeta) ([]byte, error) {
	size, err := zarrDTypeSize(meta.DataType)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)

	// Default fill to 0 if unspecified.
	var v float64
	switch t := meta.FillValue.(type) {
	case nil:
		return out, nil
	case float64:
		v = t
	case bool:
		if t {
			v = 1
		}
	case string:
		switch t {
		case "NaN":
			v = math.NaN()
		case "Infinity":
			v = math.Inf(1)
		case "-Infinity":
			v = math.Inf(-1)
		default:
			return nil, fmt.Errorf("unsupported fill_value %q", t)
		}
	default:
		return nil, fmt.Errorf("unsupported fill_value type for %s: %T", meta.DataType, meta.FillValue)
	}

	switch meta.DataType {
	case "uint8", "int8", "bool":
		out[0] = byte(int64(v))
	case "uint16", "int16":
		binary.LittleEndian.PutUint16(out, uint16(int64(v)))
	case "uint32", "int32":
		binary.LittleEndian.PutUint32(out, uint32(int64(v)))
	case "float32":
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case "uint64":
		binary.LittleEndian.PutUint64(out, uint64(v))
	case "int64":
		binary.LittleEndian.PutUint64(out, uint64(int64(v)))
	case "float64":
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	}
	return out, nil
}

func repeatFillBytes(fill []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, len(fill)*n)
	// Zero fill is already in place.
	allZero := true
	for _, b := range fill {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return out
	}
	for i := 0; i < n; i++ {
		copy(out[i*len(fill):], fill)
	}
	return out
}

func product(ints []int) int {
	p := 1
	for _, v := range ints {
		p *= v
	}
	return p
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
