package db

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestBytesToEmbedding_KnownValues(t *testing.T) {
	// float32(1.0) LE = [0x00, 0x00, 0x80, 0x3F]
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(1.0))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(-0.5))

	result := bytesToEmbedding(data)
	if len(result) != 2 {
		t.Fatalf("expected 2 floats, got %d", len(result))
	}
	if result[0] != 1.0 || result[1] != -0.5 {
		t.Errorf("got %v, want [1 -0.5]", result)
	}
}

func TestBytesToEmbedding_ShortChunk(t *testing.T) {
	data := make([]byte, 5)
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(2.5))
	data[4] = 0xFF

	result := bytesToEmbedding(data)
	if len(result) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(result))
	}
	if result[1] != 0.0 {
		t.Errorf("trailing chunk should be 0.0, got %f", result[1])
	}
}

func TestEmbeddingRoundTrip_768Dim(t *testing.T) {
	v := make([]float32, 768)
	for i := range v {
		v[i] = float32(i)*0.001 - 0.3
	}
	data := embeddingToBytes(v)
	if len(data) != 768*4 {
		t.Fatalf("expected %d bytes, got %d", 768*4, len(data))
	}
	back := bytesToEmbedding(data)
	for i := range v {
		if back[i] != v[i] {
			t.Fatalf("dim %d: got %f, want %f", i, back[i], v[i])
		}
	}
}

func TestEmbeddingToBytes_Empty(t *testing.T) {
	if got := embeddingToBytes(nil); len(got) != 0 {
		t.Errorf("expected no bytes, got %d", len(got))
	}
}
