package tokenize

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/densekit/densekit/dataset"
)

// Source file formats accepted by TrainDataset.
const (
	FileTypeCSV   = "csv"
	FileTypeJSONL = "json"
)

// loadSplit reads one source file into a named split.
func loadSplit(name, path, fileType string) (*dataset.Split, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	defer f.Close()

	switch fileType {
	case FileTypeCSV:
		return readCSV(name, f)
	case FileTypeJSONL:
		return readJSONL(name, f)
	default:
		return nil, fmt.Errorf("tokenize: unsupported file type %q (want %q or %q)", fileType, FileTypeCSV, FileTypeJSONL)
	}
}

// readCSV treats the first record as the header row. All values stay strings;
// downstream consumers coerce label and id columns as needed.
func readCSV(name string, r io.Reader) (*dataset.Split, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("tokenize: csv header: %w", err)
	}

	split := &dataset.Split{Name: name, Columns: append([]string(nil), header...)}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tokenize: csv row %d: %w", split.Len()+1, err)
		}
		ex := make(dataset.Example, len(header))
		for i, col := range header {
			ex[col] = record[i]
		}
		split.Examples = append(split.Examples, ex)
	}
	return split, nil
}

func readJSONL(name string, r io.Reader) (*dataset.Split, error) {
	split := &dataset.Split{Name: name}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<24)

	seen := map[string]bool{}
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ex dataset.Example
		if err := json.Unmarshal(raw, &ex); err != nil {
			return nil, fmt.Errorf("tokenize: jsonl line %d: %w", line, err)
		}
		for col := range ex {
			if !seen[col] {
				seen[col] = true
				split.Columns = append(split.Columns, col)
			}
		}
		split.Examples = append(split.Examples, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	sort.Strings(split.Columns)
	return split, nil
}
