// Package cowtree implements a persistent copy-on-write B+tree over pages. Every version of
// a tree is named by its root page; versions share every node that was not on the path of
// a modification.
package cowtree

import (
	"bytes"
	"sort"

	"github.com/leftmike/cowdb/page"
)

const (
	maxEntries = 32
	minEntries = maxEntries / 4
)

type Reader interface {
	Read(pn page.PageNum) (*page.Node, error)
}

// Writer owns the working version of a write transaction.
//
// Writable returns a node which may be modified in place: pn itself if the writer
// allocated it, otherwise a clone on a newly allocated page, in which case pn is superseded.
// Free releases a page which is no longer part of the working version.
type Writer interface {
	Reader
	Writable(pn page.PageNum) (*page.Node, page.PageNum, error)
	Alloc(n *page.Node) page.PageNum
	Free(pn page.PageNum, n *page.Node)
}

type split struct {
	key []byte
	pn  page.PageNum
}

func search(keys [][]byte, key []byte) (int, bool) {
	idx := sort.Search(len(keys),
		func(i int) bool {
			return bytes.Compare(keys[i], key) >= 0
		})
	return idx, idx < len(keys) && bytes.Equal(keys[idx], key)
}

func childIndex(n *page.Node, key []byte) int {
	return sort.Search(len(n.Keys)-1,
		func(i int) bool {
			return bytes.Compare(n.Keys[i+1], key) > 0
		})
}

func insertAt[T any](s []T, idx int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func removeAt[T any](s []T, idx int) []T {
	copy(s[idx:], s[idx+1:])
	var zero T
	s[len(s)-1] = zero
	return s[:len(s)-1]
}

func Get(r Reader, root page.PageNum, key []byte) ([]byte, bool, error) {
	pn := root
	for pn != page.NoPage {
		n, err := r.Read(pn)
		if err != nil {
			return nil, false, err
		}
		if n.Leaf {
			idx, found := search(n.Keys, key)
			if !found {
				return nil, false, nil
			}
			return n.Values[idx], true, nil
		}
		pn = n.Children[childIndex(n, key)]
	}
	return nil, false, nil
}

// Put sets key to val and returns the new root. The tree keeps key and val; the caller must
// not modify them afterwards.
func Put(w Writer, root page.PageNum, key, val []byte) (page.PageNum, error) {
	if root == page.NoPage {
		return w.Alloc(&page.Node{
			Leaf:   true,
			Keys:   [][]byte{key},
			Values: [][]byte{val},
		}), nil
	}

	pn, sp, err := put(w, root, key, val)
	if err != nil {
		return page.NoPage, err
	}
	if sp != nil {
		return w.Alloc(&page.Node{
			Keys:     [][]byte{nil, sp.key},
			Children: []page.PageNum{pn, sp.pn},
		}), nil
	}
	return pn, nil
}

func put(w Writer, pn page.PageNum, key, val []byte) (page.PageNum, *split, error) {
	n, pn, err := w.Writable(pn)
	if err != nil {
		return page.NoPage, nil, err
	}

	if n.Leaf {
		idx, found := search(n.Keys, key)
		if found {
			n.Values[idx] = val
			return pn, nil, nil
		}
		n.Keys = insertAt(n.Keys, idx, key)
		n.Values = insertAt(n.Values, idx, val)
	} else {
		idx := childIndex(n, key)
		cpn, sp, err := put(w, n.Children[idx], key, val)
		if err != nil {
			return page.NoPage, nil, err
		}
		n.Children[idx] = cpn
		if sp != nil {
			n.Keys = insertAt(n.Keys, idx+1, sp.key)
			n.Children = insertAt(n.Children, idx+1, sp.pn)
		}
	}

	if len(n.Keys) <= maxEntries {
		return pn, nil, nil
	}
	return pn, splitNode(w, n), nil
}

func splitNode(w Writer, n *page.Node) *split {
	mid := len(n.Keys) / 2
	right := &page.Node{
		Leaf: n.Leaf,
		Keys: append([][]byte(nil), n.Keys[mid:]...),
	}
	n.Keys = n.Keys[:mid]
	if n.Leaf {
		right.Values = append([][]byte(nil), n.Values[mid:]...)
		n.Values = n.Values[:mid]
	} else {
		right.Children = append([]page.PageNum(nil), n.Children[mid:]...)
		n.Children = n.Children[:mid]
	}

	return &split{
		key: right.Keys[0],
		pn:  w.Alloc(right),
	}
}

// Delete removes key and returns the new root. Nothing is cloned when key is not present.
func Delete(w Writer, root page.PageNum, key []byte) (page.PageNum, bool, error) {
	_, found, err := Get(w, root, key)
	if err != nil || !found {
		return root, false, err
	}

	pn, err := del(w, root, key)
	if err != nil {
		return page.NoPage, false, err
	}

	for pn != page.NoPage {
		n, err := w.Read(pn)
		if err != nil {
			return page.NoPage, false, err
		}
		if n.Leaf || len(n.Children) > 1 {
			break
		}
		w.Free(pn, n)
		pn = n.Children[0]
	}
	return pn, true, nil
}

func del(w Writer, pn page.PageNum, key []byte) (page.PageNum, error) {
	n, pn, err := w.Writable(pn)
	if err != nil {
		return page.NoPage, err
	}

	if n.Leaf {
		idx, found := search(n.Keys, key)
		if found {
			n.Keys = removeAt(n.Keys, idx)
			n.Values = removeAt(n.Values, idx)
		}
		if len(n.Keys) == 0 {
			w.Free(pn, n)
			return page.NoPage, nil
		}
		return pn, nil
	}

	idx := childIndex(n, key)
	cpn, err := del(w, n.Children[idx], key)
	if err != nil {
		return page.NoPage, err
	}
	if cpn == page.NoPage {
		n.Keys = removeAt(n.Keys, idx)
		n.Children = removeAt(n.Children, idx)
		if len(n.Children) == 0 {
			w.Free(pn, n)
			return page.NoPage, nil
		}
		return pn, nil
	}

	n.Children[idx] = cpn
	err = merge(w, n, idx)
	if err != nil {
		return page.NoPage, err
	}
	return pn, nil
}

// merge folds the child at idx into a sibling when both together fit in one node.
func merge(w Writer, n *page.Node, idx int) error {
	if len(n.Children) < 2 {
		return nil
	}
	cn, err := w.Read(n.Children[idx])
	if err != nil {
		return err
	}
	if len(cn.Keys) >= minEntries {
		return nil
	}

	li := idx
	if idx+1 == len(n.Children) {
		li = idx - 1
	}
	ri := li + 1

	rn, err := w.Read(n.Children[ri])
	if err != nil {
		return err
	}
	ln, err := w.Read(n.Children[li])
	if err != nil {
		return err
	}
	if len(ln.Keys)+len(rn.Keys) > maxEntries {
		return nil
	}

	ln, lpn, err := w.Writable(n.Children[li])
	if err != nil {
		return err
	}
	if ln.Leaf {
		ln.Keys = append(ln.Keys, rn.Keys...)
		ln.Values = append(ln.Values, rn.Values...)
	} else {
		ln.Keys = append(ln.Keys, n.Keys[ri])
		ln.Keys = append(ln.Keys, rn.Keys[1:]...)
		ln.Children = append(ln.Children, rn.Children...)
	}
	w.Free(n.Children[ri], rn)

	n.Children[li] = lpn
	n.Keys = removeAt(n.Keys, ri)
	n.Children = removeAt(n.Children, ri)
	return nil
}

// Walk calls fn for every page of the tree, parents before children.
func Walk(r Reader, root page.PageNum, fn func(pn page.PageNum, n *page.Node) error) error {
	if root == page.NoPage {
		return nil
	}

	n, err := r.Read(root)
	if err != nil {
		return err
	}
	err = fn(root, n)
	if err != nil {
		return err
	}
	for _, cpn := range n.Children {
		err = Walk(r, cpn, fn)
		if err != nil {
			return err
		}
	}
	return nil
}

// Free releases every page of the tree.
func Free(w Writer, root page.PageNum) error {
	return Walk(w, root,
		func(pn page.PageNum, n *page.Node) error {
			w.Free(pn, n)
			return nil
		})
}
