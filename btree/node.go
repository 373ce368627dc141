package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sharedcode/pmtree"
)

// node is one B-tree node as persisted through pmm.Manager: a leaf holding
// keys and record-body identifiers, or an inner node holding routing keys
// and child identifiers. Encoding follows the teacher's handle encoder
// (encoding/binary into a bytes.Buffer) rather than a general-purpose
// marshaler, since a node's shape (fixed-width HKeys, fixed-width UUIDs) is
// exactly the kind of packed binary layout that style targets.
type node struct {
	isLeaf   bool
	keys     [][]byte      // HKeys, len == count, sorted ascending
	bodies   []pmtree.UUID // leaf only: record body per key, len == count
	children []pmtree.UUID // inner only: len == count+1
}

func newLeaf() *node {
	return &node{isLeaf: true}
}

func newInner() *node {
	return &node{isLeaf: false}
}

func (n *node) count() int { return len(n.keys) }

func encodeNode(n *node, hkeySize int) []byte {
	var w bytes.Buffer
	var leafByte byte
	if n.isLeaf {
		leafByte = 1
	}
	w.WriteByte(leafByte)
	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(n.keys)))
	w.Write(countBuf[:])
	for _, k := range n.keys {
		if len(k) != hkeySize {
			panic(fmt.Sprintf("btree: key length %d does not match class HKeySize %d", len(k), hkeySize))
		}
		w.Write(k)
	}
	if n.isLeaf {
		for _, b := range n.bodies {
			w.Write(b.Bytes())
		}
	} else {
		for _, c := range n.children {
			w.Write(c.Bytes())
		}
	}
	return w.Bytes()
}

func decodeNode(data []byte, hkeySize int) (*node, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("btree: node blob too small (%d bytes)", len(data))
	}
	r := bytes.NewReader(data)
	leafByte, _ := r.ReadByte()
	n := &node{isLeaf: leafByte == 1}
	var countBuf [2]byte
	if _, err := r.Read(countBuf[:]); err != nil {
		return nil, fmt.Errorf("btree: decoding node count: %w", err)
	}
	count := int(binary.LittleEndian.Uint16(countBuf[:]))
	n.keys = make([][]byte, count)
	for i := 0; i < count; i++ {
		k := make([]byte, hkeySize)
		if _, err := r.Read(k); err != nil {
			return nil, fmt.Errorf("btree: decoding key %d: %w", i, err)
		}
		n.keys[i] = k
	}
	childCount := count
	if !n.isLeaf {
		childCount = count + 1
	}
	ids := make([]pmtree.UUID, childCount)
	var idBuf [16]byte
	for i := 0; i < childCount; i++ {
		if _, err := r.Read(idBuf[:]); err != nil {
			return nil, fmt.Errorf("btree: decoding id %d: %w", i, err)
		}
		id, err := pmtree.ParseUUIDBytes(idBuf[:])
		if err != nil {
			return nil, fmt.Errorf("btree: decoding id %d: %w", i, err)
		}
		ids[i] = id
	}
	if n.isLeaf {
		n.bodies = ids
	} else {
		n.children = ids
	}
	return n, nil
}

func encodeRootDescriptor(d RootDescriptor) []byte {
	var w bytes.Buffer
	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], d.ClassID)
	w.Write(b4[:])
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], d.Features)
	w.Write(b8[:])
	var b2 [2]byte
	binary.LittleEndian.PutUint16(b2[:], d.Order)
	w.Write(b2[:])
	w.Write(d.RootNodeID.Bytes())
	binary.LittleEndian.PutUint32(b4[:], d.Version)
	w.Write(b4[:])
	return w.Bytes()
}

func decodeRootDescriptor(data []byte) (RootDescriptor, error) {
	var d RootDescriptor
	if len(data) < rootDescriptorSize {
		return d, fmt.Errorf("btree: root descriptor blob too small (%d bytes)", len(data))
	}
	r := bytes.NewReader(data)
	var b4 [4]byte
	r.Read(b4[:])
	d.ClassID = binary.LittleEndian.Uint32(b4[:])
	var b8 [8]byte
	r.Read(b8[:])
	d.Features = binary.LittleEndian.Uint64(b8[:])
	var b2 [2]byte
	r.Read(b2[:])
	d.Order = binary.LittleEndian.Uint16(b2[:])
	var idBuf [16]byte
	r.Read(idBuf[:])
	id, err := pmtree.ParseUUIDBytes(idBuf[:])
	if err != nil {
		return d, err
	}
	d.RootNodeID = id
	r.Read(b4[:])
	d.Version = binary.LittleEndian.Uint32(b4[:])
	return d, nil
}
