package statedb

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/colorfulnotion/zkstate/felt"
)

// TrieJSON renders every entry under root as a JSON object of hex key to hex value.
func (s *StateDB) TrieJSON(root felt.Felt) ([]byte, error) {
	entries := make(map[string]string)
	err := s.smt.Walk(root, func(k, v felt.Felt) error {
		entries[felt.Hex(k)] = felt.Hex(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(entries)
}

// DiffRoots compares the entries under two roots. It returns an ASCII diff
// and whether anything changed.
func (s *StateDB) DiffRoots(from, to felt.Felt, coloring bool) (string, bool, error) {
	fromJSON, err := s.TrieJSON(from)
	if err != nil {
		return "", false, fmt.Errorf("diff from %s: %w", felt.Hex(from), err)
	}
	toJSON, err := s.TrieJSON(to)
	if err != nil {
		return "", false, fmt.Errorf("diff to %s: %w", felt.Hex(to), err)
	}

	differ := gojsondiff.New()
	delta, err := differ.Compare(fromJSON, toJSON)
	if err != nil {
		return "", false, err
	}
	if !delta.Modified() {
		return "", false, nil
	}
	// unmarshal for the formatter
	var leftObj interface{}
	if err := json.Unmarshal(fromJSON, &leftObj); err != nil {
		return "", false, err
	}
	asciiFmt := formatter.NewAsciiFormatter(leftObj, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	})
	out, err := asciiFmt.Format(delta)
	if err != nil {
		return "", true, err
	}
	return out, true, nil
}
