// Package trie implements a sparse Merkle trie of configurable arity whose
// keys, values and node digests are all field elements.
package trie

import (
	"fmt"
	"math/big"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/hasher"
	"github.com/colorfulnotion/zkstate/log"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/zkerrors"
)

var (
	ErrCorrupt      = zkerrors.ErrCorrupt
	ErrInvalidArity = zkerrors.ErrInvalidArity
)

// SMT is a stateless handle over a node store: every operation takes a root
// and returns a root. Nodes are never mutated, so old roots stay readable.
//
// Digit i of key k is floor(k / arity^i) mod arity; the trie consumes the
// least significant digit first. A leaf sits at the shallowest depth where
// its digit prefix is unique, which makes the root a function of the
// key/value set alone.
type SMT struct {
	db       *storage.DB
	h        hasher.Hasher
	arity    int
	arityBig *big.Int
	maxDepth int
}

func New(db *storage.DB, h hasher.Hasher, arity int) (*SMT, error) {
	if arity < 2 {
		return nil, fmt.Errorf("arity %d: %w", arity, ErrInvalidArity)
	}
	a := big.NewInt(int64(arity))
	// number of base-arity digits of r-1
	depth := 0
	for p, limit := big.NewInt(1), new(big.Int).Sub(felt.Modulus(), big.NewInt(1)); p.Cmp(limit) <= 0; p.Mul(p, a) {
		depth++
	}
	return &SMT{db: db, h: h, arity: arity, arityBig: a, maxDepth: depth}, nil
}

func (t *SMT) Arity() int { return t.arity }

func (t *SMT) Hasher() hasher.Hasher { return t.h }

func (t *SMT) MaxDepth() int { return t.maxDepth }

// ref is the result of rewriting a subtree. leaf is set when the subtree is a
// single leaf, so a parent left with one child can hoist it without a reload.
type ref struct {
	hash felt.Felt
	leaf *leafRef
}

type leafRef struct {
	rkey  *big.Int
	value felt.Felt
}

func (t *SMT) digit(rem *big.Int) (int, *big.Int) {
	q, m := new(big.Int).QuoRem(rem, t.arityBig, new(big.Int))
	return int(m.Int64()), q
}

// Get returns the value stored under key. A missing key is reported with
// found=false and a nil error.
func (t *SMT) Get(root, key felt.Felt) (value felt.Felt, found bool, err error) {
	rem := felt.ToBig(key)
	cur := root
	for depth := 0; ; depth++ {
		if cur.IsZero() {
			return felt.Felt{}, false, nil
		}
		if depth > t.maxDepth {
			return felt.Felt{}, false, fmt.Errorf("get %s: path exceeds depth %d: %w", felt.Hex(key), t.maxDepth, ErrCorrupt)
		}
		n, err := t.loadNode(cur)
		if err != nil {
			return felt.Felt{}, false, err
		}
		if n.leaf {
			if felt.ToBig(n.rkey).Cmp(rem) == 0 {
				return n.value, true, nil
			}
			return felt.Felt{}, false, nil
		}
		var d int
		d, rem = t.digit(rem)
		cur = n.children[d]
	}
}

// Has reports whether key holds a non-zero value under root.
func (t *SMT) Has(root, key felt.Felt) (bool, error) {
	_, found, err := t.Get(root, key)
	return found, err
}

// Set writes value under key and returns the new root. A zero value deletes
// the key. Setting a key to the value it already holds returns root unchanged.
func (t *SMT) Set(root, key, value felt.Felt) (felt.Felt, error) {
	r, err := t.set(root, felt.ToBig(key), value, 0)
	if err != nil {
		return root, fmt.Errorf("set %s: %w", felt.Hex(key), err)
	}
	log.Trace(log.TrieMonitoring, "Set", "key", felt.Hex(key), "old", felt.Hex(root), "new", felt.Hex(r.hash))
	return r.hash, nil
}

// Delete removes key; deleting an absent key returns root unchanged.
func (t *SMT) Delete(root, key felt.Felt) (felt.Felt, error) {
	return t.Set(root, key, felt.Felt{})
}

func (t *SMT) newLeaf(rem *big.Int, value felt.Felt) (ref, error) {
	rkey, err := felt.FromBig(rem)
	if err != nil {
		return ref{}, err
	}
	h, err := t.putNode(t.encodeLeaf(rkey, value))
	if err != nil {
		return ref{}, err
	}
	return ref{hash: h, leaf: &leafRef{rkey: rem, value: value}}, nil
}

func (t *SMT) set(cur felt.Felt, rem *big.Int, value felt.Felt, depth int) (ref, error) {
	if cur.IsZero() {
		if value.IsZero() {
			return ref{}, nil
		}
		return t.newLeaf(rem, value)
	}
	if depth > t.maxDepth {
		return ref{}, fmt.Errorf("path exceeds depth %d: %w", t.maxDepth, ErrCorrupt)
	}
	n, err := t.loadNode(cur)
	if err != nil {
		return ref{}, err
	}

	if n.leaf {
		existing := &leafRef{rkey: felt.ToBig(n.rkey), value: n.value}
		unchanged := ref{hash: cur, leaf: existing}
		if existing.rkey.Cmp(rem) == 0 {
			switch {
			case value.IsZero():
				return ref{}, nil
			case felt.Equal(value, n.value):
				return unchanged, nil
			}
			return t.newLeaf(rem, value)
		}
		if value.IsZero() {
			return unchanged, nil
		}
		return t.split(existing, &leafRef{rkey: rem, value: value}, depth)
	}

	d, sub := t.digit(rem)
	child, err := t.set(n.children[d], sub, value, depth+1)
	if err != nil {
		return ref{}, err
	}
	if felt.Equal(child.hash, n.children[d]) {
		return ref{hash: cur}, nil
	}
	children := make([]felt.Felt, t.arity)
	copy(children, n.children)
	children[d] = child.hash
	return t.collapse(children, d, child, depth)
}

// collapse writes the branch for children unless it has become empty or holds
// a lone leaf, in which case the leaf is hoisted into this slot.
func (t *SMT) collapse(children []felt.Felt, changed int, changedRef ref, depth int) (ref, error) {
	only, count := -1, 0
	for i := range children {
		if !children[i].IsZero() {
			only = i
			count++
		}
	}
	switch count {
	case 0:
		return ref{}, nil
	case 1:
		var lone *leafRef
		if only == changed {
			lone = changedRef.leaf
		} else {
			n, err := t.loadNode(children[only])
			if err != nil {
				return ref{}, err
			}
			if n.leaf {
				lone = &leafRef{rkey: felt.ToBig(n.rkey), value: n.value}
			}
		}
		if lone != nil {
			rkey := new(big.Int).Mul(lone.rkey, t.arityBig)
			rkey.Add(rkey, big.NewInt(int64(only)))
			log.Trace(log.TrieMonitoring, "hoist leaf", "depth", depth, "slot", only)
			return t.newLeaf(rkey, lone.value)
		}
	}
	h, err := t.putNode(t.encodeBranch(children))
	if err != nil {
		return ref{}, err
	}
	return ref{hash: h}, nil
}

// split builds the subtree holding two leaves whose remainders differ at this
// depth, descending until their digits diverge.
func (t *SMT) split(a, b *leafRef, depth int) (ref, error) {
	if depth > t.maxDepth {
		return ref{}, fmt.Errorf("keys do not diverge within depth %d: %w", t.maxDepth, ErrCorrupt)
	}
	da, subA := t.digit(a.rkey)
	db, subB := t.digit(b.rkey)
	children := make([]felt.Felt, t.arity)
	if da != db {
		la, err := t.newLeaf(subA, a.value)
		if err != nil {
			return ref{}, err
		}
		lb, err := t.newLeaf(subB, b.value)
		if err != nil {
			return ref{}, err
		}
		children[da], children[db] = la.hash, lb.hash
	} else {
		child, err := t.split(&leafRef{rkey: subA, value: a.value}, &leafRef{rkey: subB, value: b.value}, depth+1)
		if err != nil {
			return ref{}, err
		}
		children[da] = child.hash
	}
	h, err := t.putNode(t.encodeBranch(children))
	if err != nil {
		return ref{}, err
	}
	return ref{hash: h}, nil
}
