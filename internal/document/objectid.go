package document

import (
	"crypto/rand"
	"encoding/hex"
)

// NewObjectID generates a server-assigned object id: 128 bits of
// crypto/rand entropy, hex-encoded (spec §3: "server-generated as a
// 128-bit random hex"). The generation technique is carried over from
// the teacher's join-token generator (crypto/rand -> hex.EncodeToString)
// even though join tokens themselves have no analog here.
func NewObjectID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("document: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
