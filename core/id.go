package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"pkt.systems/codesync/schema"
)

// MainFileID is the id of the file seeded on join and reset.
const MainFileID schema.FileID = "main"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newFileID() schema.FileID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return schema.FileID("file_" + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}
