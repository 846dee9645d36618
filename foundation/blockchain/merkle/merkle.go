// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkel tree for validation
// support for the blockchain.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree. Hash must return a hex encoded hash.
type Hashable[T any] interface {
	Hash() string
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. Level 0 holds the leaf hashes
// and the last level holds the root.
type Tree[T Hashable[T]] struct {
	values       []T
	levels       [][][]byte
	MerkleRoot   []byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// generate constructs the levels of the tree from the specified data. An odd
// node at any level is paired with itself.
func (t *Tree[T]) generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no content")
	}

	leafs := make([][]byte, len(values))
	for i, value := range values {
		h, err := hexutil.Decode(value.Hash())
		if err != nil {
			return err
		}
		leafs[i] = h
	}

	levels := [][][]byte{leafs}
	for cur := leafs; len(cur) > 1; {
		next := make([][]byte, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			right := i + 1
			if right == len(cur) {
				right = i
			}

			h, err := t.pair(cur[i], cur[right])
			if err != nil {
				return err
			}
			next = append(next, h)
		}
		levels = append(levels, next)
		cur = next
	}

	// A single leaf is still hashed with itself to produce the root.
	if len(leafs) == 1 {
		h, err := t.pair(leafs[0], leafs[0])
		if err != nil {
			return err
		}
		levels = append(levels, [][]byte{h})
	}

	t.values = values
	t.levels = levels
	t.MerkleRoot = levels[len(levels)-1][0]

	return nil
}

// pair hashes two nodes together.
func (t *Tree[T]) pair(left, right []byte) ([]byte, error) {
	h := t.hashStrategy()
	if _, err := h.Write(append(append([]byte{}, left...), right...)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree. An order of 0 means the proof
// hash comes first, 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	idx := -1
	for i, v := range t.values {
		if v.Equals(data) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil, errors.New("unable to find data in tree")
	}

	var proof [][]byte
	var order []int64
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}

		proof = append(proof, level[sibling])
		if idx%2 == 0 {
			order = append(order, 1)
		} else {
			order = append(order, 0)
		}
		idx /= 2
	}

	return proof, order, nil
}

// VerifyData indicates whether a given piece of data is in the tree by
// walking its proof back up to the root.
func (t *Tree[T]) VerifyData(data T) error {
	proof, order, err := t.Proof(data)
	if err != nil {
		return err
	}

	h, err := hexutil.Decode(data.Hash())
	if err != nil {
		return err
	}

	for i, p := range proof {
		if order[i] == 0 {
			h, err = t.pair(p, h)
		} else {
			h, err = t.pair(h, p)
		}
		if err != nil {
			return err
		}
	}

	if !bytes.Equal(h, t.MerkleRoot) {
		return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
	}

	return nil
}

// Values returns the values stored in the tree.
func (t *Tree[T]) Values() []T {
	return t.values
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. Use the Values function to
// return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}
