package hnsw

import (
	"encoding/binary"
	"fmt"
	"math"
)

// On-disk formats, both little-endian:
//
//	vector    — dim × 4 bytes, IEEE-754 float32
//	adjacency — n × 12 bytes, repeated (u64 level‖id, f32 distance)
//
// The encodings are explicit byte-by-byte; the memory layout of a Go
// slice is never reinterpreted.

const adjacencyRecordSize = 12

func encodeVector(v []float32) []byte {
	buf := make([]byte, 0, len(v)*4)
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("hnsw: vector payload length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (l *levelVec) encode() []byte {
	buf := make([]byte, 0, len(l.value)*adjacencyRecordSize)
	for _, e := range l.value {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.point))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(e.dist))
	}
	return buf
}

func decodeLevelVec(b []byte) (*levelVec, error) {
	if len(b)%adjacencyRecordSize != 0 {
		return nil, fmt.Errorf("hnsw: adjacency payload length %d is not a multiple of %d", len(b), adjacencyRecordSize)
	}
	l := &levelVec{}
	for off := 0; off < len(b); off += adjacencyRecordSize {
		word := binary.LittleEndian.Uint64(b[off:])
		dist := math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:]))
		l.push(orderID{point: point(word), dist: dist}, 0)
	}
	return l, nil
}
