// Package checkpoint reads and writes the .dkt blob format used for model
// weights, optimizer state and persisted embeddings.
//
// Layout of a .dkt file:
//
//	magic "DKT1" (4 bytes)
//	header length (uint32, little endian)
//	header JSON (see Header)
//	payload: concatenated row-major float32 blobs, little endian
//
// The header carries a SHA-256 checksum of the payload; Read fails on
// mismatch so a truncated or corrupted checkpoint is never silently loaded.
package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/densekit/densekit/internal/tensor"
)

const (
	magic         = "DKT1"
	formatVersion = 1
)

// Header is the JSON header of a .dkt file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Checksum      string            `json:"checksum"`
}

// TensorMeta describes one matrix in the payload.
type TensorMeta struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// Write persists the named matrices to path. Tensors are written in
// name order so the same state dict always produces the same file.
func Write(path string, tensors map[string]*tensor.Matrix, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: formatVersion,
		CreatedAt:     time.Now().UTC(),
		Metadata:      metadata,
	}

	var payloadSize int64
	for _, name := range names {
		m := tensors[name]
		size := int64(len(m.Data()) * 4)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			Rows:   m.Rows(),
			Cols:   m.Cols(),
			Offset: payloadSize,
			Size:   size,
		})
		payloadSize += size
	}

	payload := make([]byte, payloadSize)
	for i, name := range names {
		meta := header.Tensors[i]
		buf := payload[meta.Offset : meta.Offset+meta.Size]
		for j, v := range tensors[name].Data() {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
	}

	sum := sha256.Sum256(payload)
	header.Checksum = hex.EncodeToString(sum[:])

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal header: %w", err)
	}

	out := make([]byte, 0, len(magic)+4+len(headerJSON)+len(payload))
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, payload...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", path, err)
	}
	return nil
}

// Read loads all matrices and metadata from path, validating the payload
// checksum.
func Read(path string) (map[string]*tensor.Matrix, map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	if len(raw) < len(magic)+4 || string(raw[:len(magic)]) != magic {
		return nil, nil, fmt.Errorf("checkpoint: %s is not a .dkt file", path)
	}

	headerLen := binary.LittleEndian.Uint32(raw[len(magic):])
	headerStart := len(magic) + 4
	payloadStart := headerStart + int(headerLen)
	if payloadStart > len(raw) {
		return nil, nil, fmt.Errorf("checkpoint: %s: truncated header", path)
	}

	var header Header
	if err := json.Unmarshal(raw[headerStart:payloadStart], &header); err != nil {
		return nil, nil, fmt.Errorf("checkpoint: parse header: %w", err)
	}
	if header.FormatVersion != formatVersion {
		return nil, nil, fmt.Errorf("checkpoint: unsupported format version %d", header.FormatVersion)
	}

	payload := raw[payloadStart:]
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != header.Checksum {
		return nil, nil, fmt.Errorf("checkpoint: %s: checksum mismatch", path)
	}

	tensors := make(map[string]*tensor.Matrix, len(header.Tensors))
	for _, meta := range header.Tensors {
		if meta.Offset+meta.Size > int64(len(payload)) {
			return nil, nil, fmt.Errorf("checkpoint: %s: tensor %q out of bounds", path, meta.Name)
		}
		buf := payload[meta.Offset : meta.Offset+meta.Size]
		data := make([]float32, meta.Rows*meta.Cols)
		for j := range data {
			data[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		tensors[meta.Name] = tensor.FromSlice(meta.Rows, meta.Cols, data)
	}
	return tensors, header.Metadata, nil
}

var checkpointDirPattern = regexp.MustCompile(`^checkpoint-(\d+)$`)

// LatestStep scans dir for checkpoint-<step> subdirectories and returns the
// highest step and its path. Returns step -1 when none exist.
func LatestStep(dir string) (int, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, "", nil
		}
		return -1, "", fmt.Errorf("checkpoint: scan %s: %w", dir, err)
	}

	best := -1
	bestPath := ""
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := checkpointDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		step, err := strconv.Atoi(m[1])
		if err != nil || step <= best {
			continue
		}
		best = step
		bestPath = filepath.Join(dir, entry.Name())
	}
	return best, bestPath, nil
}

// StepDir returns the checkpoint directory path for a given step.
func StepDir(dir string, step int) string {
	return filepath.Join(dir, fmt.Sprintf("checkpoint-%d", step))
}
