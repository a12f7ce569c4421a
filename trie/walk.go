package trie

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/xlab/treeprint"

	"github.com/colorfulnotion/zkstate/felt"
)

// ErrStopWalk may be returned by a walk callback to end the walk early.
var ErrStopWalk = errors.New("stop walk")

// Walk visits every (key, value) under root, in depth-first digit order.
func (t *SMT) Walk(root felt.Felt, fn func(key, value felt.Felt) error) error {
	err := t.walk(root, new(big.Int), big.NewInt(1), 0, fn)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

// walk carries the key digits consumed so far as prefix and arity^depth as scale.
func (t *SMT) walk(cur felt.Felt, prefix, scale *big.Int, depth int, fn func(key, value felt.Felt) error) error {
	if cur.IsZero() {
		return nil
	}
	if depth > t.maxDepth {
		return fmt.Errorf("walk: path exceeds depth %d: %w", t.maxDepth, ErrCorrupt)
	}
	n, err := t.loadNode(cur)
	if err != nil {
		return err
	}
	if n.leaf {
		k := new(big.Int).Mul(felt.ToBig(n.rkey), scale)
		k.Add(k, prefix)
		key, err := felt.FromBig(k)
		if err != nil {
			return fmt.Errorf("walk: leaf %s: %w", felt.Hex(cur), ErrCorrupt)
		}
		return fn(key, n.value)
	}
	next := new(big.Int).Mul(scale, t.arityBig)
	for d, child := range n.children {
		p := new(big.Int).Mul(big.NewInt(int64(d)), scale)
		p.Add(p, prefix)
		if err := t.walk(child, p, next, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Entries collects every (key, value) under root.
func (t *SMT) Entries(root felt.Felt) (keys, values []felt.Felt, err error) {
	err = t.Walk(root, func(k, v felt.Felt) error {
		keys = append(keys, k)
		values = append(values, v)
		return nil
	})
	return keys, values, err
}

// Dump renders the trie under root as an indented tree.
func (t *SMT) Dump(root felt.Felt) (string, error) {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("root %s (arity %d, %s)", short(root), t.arity, t.h.Name()))
	if err := t.dump(tree, root, 0); err != nil {
		return "", err
	}
	return tree.String(), nil
}

func (t *SMT) dump(tree treeprint.Tree, cur felt.Felt, depth int) error {
	if cur.IsZero() {
		tree.AddNode("(empty)")
		return nil
	}
	if depth > t.maxDepth {
		return fmt.Errorf("dump: path exceeds depth %d: %w", t.maxDepth, ErrCorrupt)
	}
	n, err := t.loadNode(cur)
	if err != nil {
		return err
	}
	if n.leaf {
		tree.AddNode(fmt.Sprintf("leaf %s rkey=%s value=%s", short(cur), n.rkey.String(), n.value.String()))
		return nil
	}
	b := tree.AddBranch(fmt.Sprintf("branch %s", short(cur)))
	for d, child := range n.children {
		if child.IsZero() {
			continue
		}
		slot := b.AddBranch(fmt.Sprintf("[%d]", d))
		if err := t.dump(slot, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func short(h felt.Felt) string {
	s := felt.Hex(h)
	return s[:10] + ".."
}
