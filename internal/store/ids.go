package store

import (
	"crypto/rand"
	"encoding/base32"
	"sync"
	"time"

	"github.com/google/uuid"
)

// turnIDEncoding is a Crockford-style base32 alphabet, chosen because it
// sorts identically whether compared as bytes or as the decoded integer —
// required for the "(timestamp, id) is totally ordered" invariant.
var turnIDEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

var (
	idMu       sync.Mutex
	lastMillis int64
	seq        uint16
)

// NewTurnID returns a lexicographically sortable, monotone-per-process
// identifier: 48 bits of millisecond timestamp followed by a 16-bit
// sequence counter (reset only when the millisecond advances) and 64 bits
// of randomness, all base32-encoded. Two IDs minted in the same process
// are guaranteed to sort in mint order even within the same millisecond.
func NewTurnID() string {
	idMu.Lock()
	now := time.Now().UTC().UnixMilli()
	if now <= lastMillis {
		now = lastMillis
		seq++
	} else {
		lastMillis = now
		seq = 0
	}
	mySeq := seq
	idMu.Unlock()

	var buf [16]byte
	buf[0] = byte(now >> 40)
	buf[1] = byte(now >> 32)
	buf[2] = byte(now >> 24)
	buf[3] = byte(now >> 16)
	buf[4] = byte(now >> 8)
	buf[5] = byte(now)
	buf[6] = byte(mySeq >> 8)
	buf[7] = byte(mySeq)
	if _, err := rand.Read(buf[8:]); err != nil {
		// crypto/rand failure is effectively unrecoverable; fall back to
		// the sequence counter alone to preserve ordering at minimum.
		for i := 8; i < 16; i++ {
			buf[i] = byte(mySeq)
		}
	}
	return turnIDEncoding.EncodeToString(buf[:])
}

// NewOpaqueID returns a random, non-sortable identifier suitable for rows
// where ordering doesn't matter (tool calls, inbox messages, memory
// entries), matching the corpus's general preference for google/uuid.
func NewOpaqueID() string {
	return uuid.NewString()
}
