package page

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrCorrupt = errors.New("page: corrupt page")

const (
	leafField     protowire.Number = 1
	versionField  protowire.Number = 2
	keyField      protowire.Number = 3
	valueField    protowire.Number = 4
	childrenField protowire.Number = 5

	headerSize = 9
)

func appendNode(buf []byte, n *Node) []byte {
	var leaf uint64
	if n.Leaf {
		leaf = 1
	}
	buf = protowire.AppendTag(buf, leafField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, leaf)
	buf = protowire.AppendTag(buf, versionField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, n.Version)

	for _, key := range n.Keys {
		buf = protowire.AppendTag(buf, keyField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, key)
	}
	for _, val := range n.Values {
		buf = protowire.AppendTag(buf, valueField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, val)
	}
	if len(n.Children) > 0 {
		var packed []byte
		for _, pn := range n.Children {
			packed = protowire.AppendVarint(packed, uint64(pn))
		}
		buf = protowire.AppendTag(buf, childrenField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}
	return buf
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

func parseNode(buf []byte) (*Node, error) {
	n := &Node{}
	for len(buf) > 0 {
		num, typ, l := protowire.ConsumeTag(buf)
		if l < 0 {
			return nil, corrupt("%s", protowire.ParseError(l))
		}
		buf = buf[l:]

		switch {
		case num == leafField && typ == protowire.VarintType:
			var v uint64
			v, l = protowire.ConsumeVarint(buf)
			n.Leaf = v != 0
		case num == versionField && typ == protowire.VarintType:
			n.Version, l = protowire.ConsumeVarint(buf)
		case num == keyField && typ == protowire.BytesType:
			var key []byte
			key, l = protowire.ConsumeBytes(buf)
			n.Keys = append(n.Keys, key)
		case num == valueField && typ == protowire.BytesType:
			var val []byte
			val, l = protowire.ConsumeBytes(buf)
			n.Values = append(n.Values, val)
		case num == childrenField && typ == protowire.BytesType:
			var packed []byte
			packed, l = protowire.ConsumeBytes(buf)
			for len(packed) > 0 {
				v, pl := protowire.ConsumeVarint(packed)
				if pl < 0 {
					return nil, corrupt("children: %s", protowire.ParseError(pl))
				}
				n.Children = append(n.Children, PageNum(v))
				packed = packed[pl:]
			}
		default:
			l = protowire.ConsumeFieldValue(num, typ, buf)
		}
		if l < 0 {
			return nil, corrupt("field %d: %s", num, protowire.ParseError(l))
		}
		buf = buf[l:]
	}

	if n.Leaf {
		if len(n.Keys) != len(n.Values) {
			return nil, corrupt("leaf: %d keys and %d values", len(n.Keys), len(n.Values))
		}
	} else if len(n.Keys) != len(n.Children) || len(n.Children) == 0 {
		return nil, corrupt("branch: %d keys and %d children", len(n.Keys), len(n.Children))
	}
	return n, nil
}

// Encode returns the stored form of n: a compression byte, an xxh3 checksum of the payload,
// and the compressed payload.
func Encode(n *Node, c Compression) ([]byte, error) {
	payload, err := compress(c, appendNode(nil, n))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize, headerSize+len(payload))
	buf[0] = byte(c)
	binary.BigEndian.PutUint64(buf[1:], xxh3.Hash(payload))
	return append(buf, payload...), nil
}

// Decode parses a stored page. The returned node may alias buf.
func Decode(buf []byte) (*Node, error) {
	if len(buf) < headerSize {
		return nil, corrupt("page too short: %d bytes", len(buf))
	}
	payload := buf[headerSize:]
	if sum := xxh3.Hash(payload); sum != binary.BigEndian.Uint64(buf[1:]) {
		return nil, corrupt("checksum mismatch: %x", sum)
	}

	data, err := decompress(Compression(buf[0]), payload)
	if err != nil {
		return nil, corrupt("%s", err)
	}
	return parseNode(data)
}
