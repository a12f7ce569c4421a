package trie

import (
	"fmt"

	"github.com/colorfulnotion/zkstate/felt"
)

const (
	TagLeaf   uint64 = 1
	TagBranch uint64 = 2
)

/*
Leaf Node (3 felts), stored under H(encoding)
+-------+--------------------------------+---------+
|  1    | rkey = key / arity^depth       |  value  |
+-------+--------------------------------+---------+

Branch Node (arity+1 felts), stored under H(encoding)
+-------+-------+-------+-----+-----------------+
|  2    |  c_0  |  c_1  | ... |  c_{arity-1}    |
+-------+-------+-------+-----+-----------------+
A zero child digest marks an empty slot.
*/

type node struct {
	leaf     bool
	rkey     felt.Felt
	value    felt.Felt
	children []felt.Felt
}

func (t *SMT) encodeLeaf(rkey, value felt.Felt) []felt.Felt {
	return []felt.Felt{felt.FromUint64(TagLeaf), rkey, value}
}

func (t *SMT) encodeBranch(children []felt.Felt) []felt.Felt {
	enc := make([]felt.Felt, 0, t.arity+1)
	enc = append(enc, felt.FromUint64(TagBranch))
	return append(enc, children...)
}

func (t *SMT) decode(h felt.Felt, enc []felt.Felt) (*node, error) {
	if len(enc) == 0 {
		return nil, fmt.Errorf("node %s: empty encoding: %w", felt.Hex(h), ErrCorrupt)
	}
	tag, ok := felt.ToUint64(enc[0])
	switch {
	case ok && tag == TagLeaf && len(enc) == 3:
		return &node{leaf: true, rkey: enc[1], value: enc[2]}, nil
	case ok && tag == TagBranch && len(enc) == t.arity+1:
		return &node{children: enc[1:]}, nil
	}
	return nil, fmt.Errorf("node %s: tag %s with %d elements: %w", felt.Hex(h), enc[0].String(), len(enc), ErrCorrupt)
}

func (t *SMT) loadNode(h felt.Felt) (*node, error) {
	enc, err := t.db.GetNodeValue(h)
	if err != nil {
		return nil, err
	}
	return t.decode(h, enc)
}

// putNode hashes and persists an encoding, returning its digest.
func (t *SMT) putNode(enc []felt.Felt) (felt.Felt, error) {
	h := t.h.Hash(enc...)
	if err := t.db.SetNodeValue(h, enc); err != nil {
		return felt.Felt{}, fmt.Errorf("store node %s: %w", felt.Hex(h), err)
	}
	return h, nil
}

