package cowtree

import (
	"bytes"

	"github.com/leftmike/cowdb/page"
)

type frame struct {
	n   *page.Node
	idx int
}

// Cursor visits the keys of one version of a tree in ascending order, from start
// (inclusive) to end (exclusive); nil means unbounded. Nodes are read as the cursor reaches
// them.
type Cursor struct {
	r       Reader
	root    page.PageNum
	start   []byte
	end     []byte
	started bool
	stack   []frame
}

func NewCursor(r Reader, root page.PageNum, start, end []byte) *Cursor {
	return &Cursor{
		r:     r,
		root:  root,
		start: start,
		end:   end,
	}
}

func (c *Cursor) push(pn page.PageNum, start []byte) error {
	for {
		n, err := c.r.Read(pn)
		if err != nil {
			return err
		}

		var idx int
		if n.Leaf {
			if start != nil {
				idx, _ = search(n.Keys, start)
			}
			c.stack = append(c.stack, frame{n, idx})
			return nil
		}

		if start != nil {
			idx = childIndex(n, start)
		}
		c.stack = append(c.stack, frame{n, idx})
		pn = n.Children[idx]
	}
}

// Next returns the next key and value; ok is false once the cursor is done.
func (c *Cursor) Next() (key, val []byte, ok bool, err error) {
	if !c.started {
		c.started = true
		if c.root != page.NoPage {
			err = c.push(c.root, c.start)
			if err != nil {
				c.stack = nil
				return nil, nil, false, err
			}
		}
	}

	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.n.Leaf {
			if top.idx < len(top.n.Keys) {
				key, val = top.n.Keys[top.idx], top.n.Values[top.idx]
				top.idx += 1
				if c.end != nil && bytes.Compare(key, c.end) >= 0 {
					c.stack = nil
					return nil, nil, false, nil
				}
				return key, val, true, nil
			}
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}

		top.idx += 1
		if top.idx < len(top.n.Children) {
			err = c.push(top.n.Children[top.idx], nil)
			if err != nil {
				c.stack = nil
				return nil, nil, false, err
			}
		} else {
			c.stack = c.stack[:len(c.stack)-1]
		}
	}
	return nil, nil, false, nil
}

// Reset moves the cursor back to start.
func (c *Cursor) Reset() {
	c.started = false
	c.stack = nil
}
