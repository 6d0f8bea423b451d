// Package dataset implements the on-disk dataset directories consumed by the
// estimator: named train/test splits of examples with named columns.
//
// A dataset directory contains dataset_info.json plus one <split>.jsonl file
// per split, one JSON object per row. The package never interprets column
// values beyond the typed accessors; selecting, renaming and batching columns
// is the extent of its smarts.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// ErrSplitNotFound is returned when a dataset lacks a requested split.
var ErrSplitNotFound = errors.New("dataset: split not found")

// Example is one row of a split: column name to decoded JSON value.
type Example map[string]any

// Split is an ordered sequence of examples sharing a column set.
type Split struct {
	Name     string
	Columns  []string
	Examples []Example
}

// Dataset is a collection of named splits, conventionally "train" and "test".
type Dataset struct {
	splits map[string]*Split
	order  []string
}

type info struct {
	Columns []string       `json:"columns"`
	Splits  map[string]int `json:"splits"` // split name -> row count
}

// New creates a dataset from the given splits, preserving their order.
func New(splits ...*Split) *Dataset {
	d := &Dataset{splits: make(map[string]*Split, len(splits))}
	for _, s := range splits {
		d.splits[s.Name] = s
		d.order = append(d.order, s.Name)
	}
	return d
}

// Split returns the named split.
func (d *Dataset) Split(name string) (*Split, error) {
	s, ok := d.splits[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSplitNotFound, name)
	}
	return s, nil
}

// Train returns the "train" split.
func (d *Dataset) Train() (*Split, error) { return d.Split("train") }

// Test returns the "test" split.
func (d *Dataset) Test() (*Split, error) { return d.Split("test") }

// SplitNames returns the split names in insertion order.
func (d *Dataset) SplitNames() []string {
	return slices.Clone(d.order)
}

// Save writes the dataset to dir: dataset_info.json plus <split>.jsonl files.
func (d *Dataset) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dataset: create %s: %w", dir, err)
	}

	meta := info{Splits: make(map[string]int, len(d.order))}
	for _, name := range d.order {
		s := d.splits[name]
		meta.Splits[name] = len(s.Examples)
		if meta.Columns == nil {
			meta.Columns = slices.Clone(s.Columns)
		}

		f, err := os.Create(filepath.Join(dir, name+".jsonl"))
		if err != nil {
			return fmt.Errorf("dataset: create split file: %w", err)
		}
		w := bufio.NewWriter(f)
		enc := json.NewEncoder(w)
		for _, ex := range s.Examples {
			if err := enc.Encode(ex); err != nil {
				f.Close()
				return fmt.Errorf("dataset: encode row in %s: %w", name, err)
			}
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("dataset: flush %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("dataset: close %s: %w", name, err)
		}
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("dataset: marshal info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dataset_info.json"), raw, 0o644); err != nil {
		return fmt.Errorf("dataset: write info: %w", err)
	}
	return nil
}

// Load reads a dataset directory. When columns is non-nil, each split is
// projected down to those columns (missing columns are an error).
func Load(dir string, columns []string) (*Dataset, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "dataset_info.json"))
	if err != nil {
		return nil, fmt.Errorf("dataset: read info: %w", err)
	}
	var meta info
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("dataset: parse info: %w", err)
	}

	names := make([]string, 0, len(meta.Splits))
	for name := range meta.Splits {
		names = append(names, name)
	}
	slices.Sort(names)

	d := &Dataset{splits: make(map[string]*Split, len(names))}
	for _, name := range names {
		s, err := loadSplit(dir, name, meta.Columns)
		if err != nil {
			return nil, err
		}
		if columns != nil {
			s, err = s.Select(columns)
			if err != nil {
				return nil, err
			}
		}
		d.splits[name] = s
		d.order = append(d.order, name)
	}
	return d, nil
}

func loadSplit(dir, name string, columns []string) (*Split, error) {
	f, err := os.Open(filepath.Join(dir, name+".jsonl"))
	if err != nil {
		return nil, fmt.Errorf("dataset: open split %s: %w", name, err)
	}
	defer f.Close()

	s := &Split{Name: name, Columns: slices.Clone(columns)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<26)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(scanner.Bytes(), &ex); err != nil {
			return nil, fmt.Errorf("dataset: %s.jsonl line %d: %w", name, line, err)
		}
		s.Examples = append(s.Examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: scan %s: %w", name, err)
	}
	return s, nil
}

// Len returns the number of examples in the split.
func (s *Split) Len() int { return len(s.Examples) }

// Select returns a new split projected to the given columns.
func (s *Split) Select(columns []string) (*Split, error) {
	for _, col := range columns {
		if !slices.Contains(s.Columns, col) {
			return nil, fmt.Errorf("dataset: split %s has no column %q (columns: %v)", s.Name, col, s.Columns)
		}
	}
	out := &Split{Name: s.Name, Columns: slices.Clone(columns), Examples: make([]Example, len(s.Examples))}
	for i, ex := range s.Examples {
		row := make(Example, len(columns))
		for _, col := range columns {
			row[col] = ex[col]
		}
		out.Examples[i] = row
	}
	return out, nil
}

// RenameColumn renames a column in place across all examples.
func (s *Split) RenameColumn(old, new string) error {
	idx := slices.Index(s.Columns, old)
	if idx < 0 {
		return fmt.Errorf("dataset: split %s has no column %q", s.Name, old)
	}
	s.Columns[idx] = new
	for _, ex := range s.Examples {
		if v, ok := ex[old]; ok {
			ex[new] = v
			delete(ex, old)
		}
	}
	return nil
}

// HasColumn reports whether the split carries the named column.
func (s *Split) HasColumn(name string) bool {
	return slices.Contains(s.Columns, name)
}

// Batches yields sequential batches of at most size examples, preserving
// example order. The final batch may be short.
func (s *Split) Batches(size int) iter.Seq[[]Example] {
	return func(yield func([]Example) bool) {
		if size <= 0 {
			size = 1
		}
		for lo := 0; lo < len(s.Examples); lo += size {
			hi := min(lo+size, len(s.Examples))
			if !yield(s.Examples[lo:hi]) {
				return
			}
		}
	}
}

// NumBatches returns the batch count for the given batch size.
func (s *Split) NumBatches(size int) int {
	if size <= 0 {
		size = 1
	}
	return (len(s.Examples) + size - 1) / size
}

// StringIDs extracts the id column as strings, preserving row order.
// Numeric ids are formatted without a decimal point.
func (s *Split) StringIDs(col string) ([]string, error) {
	ids := make([]string, len(s.Examples))
	for i, ex := range s.Examples {
		v, ok := ex[col]
		if !ok {
			return nil, fmt.Errorf("dataset: row %d of split %s has no column %q", i, s.Name, col)
		}
		switch t := v.(type) {
		case string:
			ids[i] = t
		case float64:
			if t == float64(int64(t)) {
				ids[i] = strconv.FormatInt(int64(t), 10)
			} else {
				ids[i] = strconv.FormatFloat(t, 'g', -1, 64)
			}
		case json.Number:
			ids[i] = t.String()
		default:
			return nil, fmt.Errorf("dataset: column %q row %d: unsupported id type %T", col, i, v)
		}
	}
	return ids, nil
}

// IntColumn extracts an integer-list column from a batch of examples.
func IntColumn(batch []Example, col string) ([][]int32, error) {
	out := make([][]int32, len(batch))
	for i, ex := range batch {
		v, ok := ex[col]
		if !ok {
			return nil, fmt.Errorf("dataset: batch row %d has no column %q", i, col)
		}
		switch t := v.(type) {
		case []int32:
			out[i] = t
		case []any:
			row := make([]int32, len(t))
			for j, e := range t {
				f, ok := e.(float64)
				if !ok {
					return nil, fmt.Errorf("dataset: column %q row %d: element %d is %T, want number", col, i, j, e)
				}
				row[j] = int32(f)
			}
			out[i] = row
		default:
			return nil, fmt.Errorf("dataset: column %q row %d: unsupported type %T", col, i, v)
		}
	}
	return out, nil
}

// FloatColumn extracts a scalar float column from a batch of examples.
func FloatColumn(batch []Example, col string) ([]float32, error) {
	out := make([]float32, len(batch))
	for i, ex := range batch {
		v, ok := ex[col]
		if !ok {
			return nil, fmt.Errorf("dataset: batch row %d has no column %q", i, col)
		}
		switch t := v.(type) {
		case float64:
			out[i] = float32(t)
		case float32:
			out[i] = t
		case int:
			out[i] = float32(t)
		case string:
			f, err := strconv.ParseFloat(t, 32)
			if err != nil {
				return nil, fmt.Errorf("dataset: column %q row %d: %w", col, i, err)
			}
			out[i] = float32(f)
		default:
			return nil, fmt.Errorf("dataset: column %q row %d: unsupported type %T", col, i, v)
		}
	}
	return out, nil
}
