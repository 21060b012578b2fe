package territory

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// UUIDToBEInts splits id into four big-endian 32-bit words, most significant first.
func UUIDToBEInts(id uuid.UUID) [4]int32 {
	var out [4]int32
	for i := 0; i < 4; i++ {
		out[i] = int32(binary.BigEndian.Uint32(id[i*4:]))
	}
	return out
}

func BEIntsToUUID(words [4]int32) uuid.UUID {
	var id uuid.UUID
	for i := 0; i < 4; i++ {
		binary.BigEndian.PutUint32(id[i*4:], uint32(words[i]))
	}
	return id
}
