package btree

import (
	"github.com/sombradb/sombra/internal/pager"
)

// Cursor is a pull-based range iterator over ascending (key, value) pairs,
// walking leaves via right-sibling links (spec.md §4.1 "Range cursor").
// It is stateful, finite, and non-restartable within one opening; a fresh
// one can always be created via Tree.Cursor.
type Cursor struct {
	t     *Tree
	src   pageSource
	upper []byte // nil = unbounded

	leaf    pager.PageID
	entries []entry
	pos     int
	done    bool
}

// Cursor seeks to the leaf containing lower (nil = leftmost leaf) and
// returns a cursor that yields entries up to, but excluding, upper
// (nil = unbounded).
func (t *Tree) Cursor(src pageSource, lower, upper any) (*Cursor, error) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	c := &Cursor{t: t, src: src}
	if upper != nil {
		c.upper = t.Key.Encode(upper)
	}
	if root == pager.NullPageID {
		c.done = true
		return c, nil
	}

	var lowerEnc []byte
	if lower != nil {
		lowerEnc = t.Key.Encode(lower)
	}

	id := root
	for {
		buf, h, err := t.fetch(src, id)
		if err != nil {
			return nil, err
		}
		if h.kind == kindLeaf {
			c.leaf = id
			c.entries = leafEntries(buf, h)
			if lowerEnc != nil {
				idx, _ := searchEntries(c.entries, lowerEnc, t.Key)
				c.pos = idx
			}
			return c, nil
		}
		kids := internalEntries(buf, h)
		if lowerEnc != nil {
			id = descendChild(kids, lowerEnc, t.Key)
		} else {
			id = kids[0].child
		}
	}
}

// Next advances the cursor and returns the next (key, value) pair, or
// false once the upper bound is exceeded or the tree is exhausted.
func (c *Cursor) Next() (any, any, bool, error) {
	if c.done {
		return nil, nil, false, nil
	}
	for {
		if c.pos < len(c.entries) {
			e := c.entries[c.pos]
			if c.upper != nil && c.t.Key.Compare(e.key, c.upper) >= 0 {
				c.done = true
				return nil, nil, false, nil
			}
			c.pos++
			return c.t.Key.Decode(e.key), c.t.Val.Decode(e.val), true, nil
		}
		buf, h, err := c.t.fetch(c.src, c.leaf)
		if err != nil {
			return nil, nil, false, err
		}
		if h.right == pager.NullPageID {
			c.done = true
			return nil, nil, false, nil
		}
		c.leaf = h.right
		nbuf, nh, err := c.t.fetch(c.src, c.leaf)
		if err != nil {
			return nil, nil, false, err
		}
		c.entries = leafEntries(nbuf, nh)
		c.pos = 0
		_ = buf
	}
}
