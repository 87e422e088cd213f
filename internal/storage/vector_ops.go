package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// serializeVector converts a float32 slice to a little-endian byte blob
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// joinTokens stores tokenizer output as a single column. Tokens never
// contain spaces.
func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}
