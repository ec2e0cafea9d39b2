package db

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/leftmike/cowdb/page"
)

const (
	FormatVersion = "1.0.0"

	formatField   protowire.Number = 1
	versionField  protowire.Number = 2
	rootField     protowire.Number = 3
	nextPageField protowire.Number = 4
	pendingField  protowire.Number = 5
)

var (
	metaKey = []byte("meta")

	formatConstraint = mustConstraint("^1.0")
)

func mustConstraint(c string) *semver.Constraints {
	sc, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("cowdb: constraint %s: %s", c, err))
	}
	return sc
}

// meta is rewritten by every commit. Pending pages were superseded but possibly still in
// use by readers when the commit happened; nothing is using them after a restart.
type meta struct {
	format   string
	version  uint64
	root     page.PageNum
	nextPage page.PageNum
	pending  []page.PageNum
}

func (m *meta) encode() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, formatField, protowire.BytesType)
	buf = protowire.AppendString(buf, m.format)
	buf = protowire.AppendTag(buf, versionField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, m.version)
	buf = protowire.AppendTag(buf, rootField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.root))
	buf = protowire.AppendTag(buf, nextPageField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.nextPage))

	if len(m.pending) > 0 {
		var packed []byte
		for _, pn := range m.pending {
			packed = protowire.AppendVarint(packed, uint64(pn))
		}
		buf = protowire.AppendTag(buf, pendingField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}
	return buf
}

func decodeMeta(buf []byte) (*meta, error) {
	m := &meta{}
	for len(buf) > 0 {
		num, typ, l := protowire.ConsumeTag(buf)
		if l < 0 {
			return nil, fmt.Errorf("%w: meta: %s", ErrCorruption, protowire.ParseError(l))
		}
		buf = buf[l:]

		var v uint64
		switch {
		case num == formatField && typ == protowire.BytesType:
			m.format, l = protowire.ConsumeString(buf)
		case num == versionField && typ == protowire.VarintType:
			m.version, l = protowire.ConsumeVarint(buf)
		case num == rootField && typ == protowire.VarintType:
			v, l = protowire.ConsumeVarint(buf)
			m.root = page.PageNum(v)
		case num == nextPageField && typ == protowire.VarintType:
			v, l = protowire.ConsumeVarint(buf)
			m.nextPage = page.PageNum(v)
		case num == pendingField && typ == protowire.BytesType:
			var packed []byte
			packed, l = protowire.ConsumeBytes(buf)
			for len(packed) > 0 {
				pv, pl := protowire.ConsumeVarint(packed)
				if pl < 0 {
					return nil, fmt.Errorf("%w: meta: pending: %s", ErrCorruption,
						protowire.ParseError(pl))
				}
				m.pending = append(m.pending, page.PageNum(pv))
				packed = packed[pl:]
			}
		default:
			l = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if l < 0 {
			return nil, fmt.Errorf("%w: meta: field %d: %s", ErrCorruption, num,
				protowire.ParseError(l))
		}
		buf = buf[l:]
	}

	if m.nextPage == page.NoPage {
		return nil, fmt.Errorf("%w: meta: missing next page", ErrCorruption)
	}
	return m, nil
}

func checkFormat(format string) error {
	ver, err := semver.NewVersion(format)
	if err != nil {
		return fmt.Errorf("%w: %q: %s", ErrIncompatible, format, err)
	}
	if !formatConstraint.Check(ver) {
		return fmt.Errorf("%w: got %s; want %s", ErrIncompatible, ver, formatConstraint)
	}
	return nil
}
