package cir

import (
	"encoding/binary"
	"math"
	"math/big"
)

// Encode renders a constant as the bytes it occupies in memory. Undefined
// bytes and symbol addresses are rendered as zero.
func (dl *DataLayout) Encode(id AttrID) []byte {
	buf := make([]byte, dl.TypeAllocSize(dl.ctx.AttrType(id)))
	dl.encodeAt(id, buf, 0)
	return buf
}

func (dl *DataLayout) encodeAt(id AttrID, buf []byte, off int64) {
	c := dl.ctx
	a := c.Attr(id)
	switch a.Kind {
	case AttrInt:
		dl.PutInt(buf[off:off+dl.TypeStoreSize(a.Type)], a.Int)
	case AttrBool:
		if a.Bool {
			buf[off] = 1
		}
	case AttrFloat:
		if c.Type(a.Type).Width == 32 {
			dl.putUint(buf[off:off+4], uint64(math.Float32bits(float32(a.Float))))
		} else {
			dl.putUint(buf[off:off+8], math.Float64bits(a.Float))
		}
	case AttrConstArray, AttrConstVector:
		stride := dl.TypeAllocSize(c.Type(a.Type).Elem)
		for i, e := range a.Elems {
			dl.encodeAt(e, buf, off+int64(i)*stride)
		}
	case AttrConstRecord:
		ro := dl.Record(a.Type)
		for i, e := range a.Elems {
			dl.encodeAt(e, buf, off+ro.Offsets[i])
		}
	}
}

// PutInt stores the low len(dst)*8 bits of v with the target byte order.
func (dl *DataLayout) PutInt(dst []byte, v *big.Int) {
	n := len(dst)
	raw := v.Bytes() // big-endian magnitude
	tmp := make([]byte, n)
	for i := 0; i < n && i < len(raw); i++ {
		tmp[n-1-i] = raw[len(raw)-1-i]
	}
	if dl.BigEndian {
		copy(dst, tmp)
		return
	}
	for i := range n {
		dst[i] = tmp[n-1-i]
	}
}

// GetInt reads an unsigned integer with the target byte order.
func (dl *DataLayout) GetInt(src []byte) *big.Int {
	n := len(src)
	tmp := make([]byte, n)
	if dl.BigEndian {
		copy(tmp, src)
	} else {
		for i := range n {
			tmp[i] = src[n-1-i]
		}
	}
	return new(big.Int).SetBytes(tmp)
}

func (dl *DataLayout) putUint(dst []byte, v uint64) {
	if dl.BigEndian {
		if len(dst) == 4 {
			binary.BigEndian.PutUint32(dst, uint32(v))
		} else {
			binary.BigEndian.PutUint64(dst, v)
		}
		return
	}
	if len(dst) == 4 {
		binary.LittleEndian.PutUint32(dst, uint32(v))
	} else {
		binary.LittleEndian.PutUint64(dst, v)
	}
}
