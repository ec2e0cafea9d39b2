// Package page holds the immutable nodes shared between versions, their on-disk encoding,
// and the pager that reads committed pages back from a kv backend.
package page

import (
	"encoding/binary"
	"fmt"
)

type PageNum uint64

// NoPage is the root of an empty tree.
const NoPage PageNum = 0

// Node is a leaf or branch of a copy-on-write B+tree. A node is never modified once it has
// been committed; a write transaction only mutates nodes it allocated itself.
//
// In a branch, Children[i] holds the keys >= Keys[i] for i > 0; Keys[0] does not route.
type Node struct {
	Leaf     bool
	Version  uint64
	Keys     [][]byte
	Values   [][]byte
	Children []PageNum
}

// Clone returns a copy of n to be owned by the writer of version ver. Keys and values are
// shared; they are never modified in place.
func (n *Node) Clone(ver uint64) *Node {
	cn := &Node{
		Leaf:    n.Leaf,
		Version: ver,
		Keys:    append(make([][]byte, 0, len(n.Keys)+1), n.Keys...),
	}
	if n.Leaf {
		cn.Values = append(make([][]byte, 0, len(n.Values)+1), n.Values...)
	} else {
		cn.Children = append(make([]PageNum, 0, len(n.Children)+1), n.Children...)
	}
	return cn
}

func (n *Node) String() string {
	if n.Leaf {
		return fmt.Sprintf("leaf@%d(%d keys)", n.Version, len(n.Keys))
	}
	return fmt.Sprintf("branch@%d(%d children)", n.Version, len(n.Children))
}

// Size is an estimate of the memory used by n.
func (n *Node) Size() int64 {
	sz := int64(64 + 24*len(n.Keys) + 8*len(n.Children))
	for _, k := range n.Keys {
		sz += int64(len(k))
	}
	for _, v := range n.Values {
		sz += int64(24 + len(v))
	}
	return sz
}

var pagePrefix = []byte{'p', 'g'}

// Key returns the kv key a page is stored under.
func Key(pn PageNum) []byte {
	return binary.BigEndian.AppendUint64(append(make([]byte, 0, 10), pagePrefix...),
		uint64(pn))
}

// ParseKey returns the page number of a page key, or false if key is not a page key.
func ParseKey(key []byte) (PageNum, bool) {
	if len(key) != 10 || key[0] != pagePrefix[0] || key[1] != pagePrefix[1] {
		return NoPage, false
	}
	return PageNum(binary.BigEndian.Uint64(key[2:])), true
}

// FirstKey is the smallest page key; iterating from it visits every page.
func FirstKey() []byte {
	return Key(NoPage)
}
