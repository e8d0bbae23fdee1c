package badger

import (
	"encoding/binary"
	"time"

	"github.com/halcyonic/recallbox/core"
)

// Key prefixes for different data types
const (
	notePrefix    = "ntrec"    // primary note records
	noteDate      = "ntrecd"   // creation-date index
	notePending   = "ntrecp"   // notes without embeddings, by creation date
	noteStaging   = "ntrecs"   // staging area for bulk embedding loads
	noteCkpt      = "ntrecc"   // backfill checkpoints
	noteIDSeq     = "ntrecseq" // ID sequence
)

// appendUint64 writes v in BigEndian so lexicographic key order matches
// numeric order.
func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// makeNoteKey generates the primary key for a note.
// Format: prefix:tenant:id (tenant and id in fixed-width BigEndian)
func makeNoteKey(tenant core.TenantID, id core.ID) []byte {
	buf := make([]byte, 0, len(notePrefix)+1+16)
	buf = append(buf, notePrefix...)
	buf = append(buf, ':')
	buf = appendUint64(buf, uint64(tenant))
	return appendUint64(buf, uint64(id))
}

// makeNoteScanPrefix generates the prefix covering all of a tenant's notes.
func makeNoteScanPrefix(tenant core.TenantID) []byte {
	buf := make([]byte, 0, len(notePrefix)+1+8)
	buf = append(buf, notePrefix...)
	buf = append(buf, ':')
	return appendUint64(buf, uint64(tenant))
}

// makeDateKey generates a composite key for the creation-date index.
// Format: prefix:tenant:timestamp:id
func makeDateKey(tenant core.TenantID, ts time.Time, id core.ID) []byte {
	return makeTimeIndexKey(noteDate, tenant, ts, id)
}

// makePendingKey generates a composite key for the pending-embedding index.
// Format: prefix:tenant:timestamp:id
func makePendingKey(tenant core.TenantID, ts time.Time, id core.ID) []byte {
	return makeTimeIndexKey(notePending, tenant, ts, id)
}

func makeTimeIndexKey(prefix string, tenant core.TenantID, ts time.Time, id core.ID) []byte {
	buf := make([]byte, 0, len(prefix)+1+24)
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = appendUint64(buf, uint64(tenant))
	buf = appendUint64(buf, uint64(ts.UnixMicro()))
	return appendUint64(buf, uint64(id))
}

// makeTimeIndexPrefix generates the per-tenant prefix of a time index.
func makeTimeIndexPrefix(prefix string, tenant core.TenantID) []byte {
	buf := make([]byte, 0, len(prefix)+1+8)
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	return appendUint64(buf, uint64(tenant))
}

// makeTimeIndexSeekKey generates the upper bound used to start reverse
// iteration over a tenant's time index.
func makeTimeIndexSeekKey(prefix string, tenant core.TenantID) []byte {
	buf := makeTimeIndexPrefix(prefix, tenant)
	for i := 0; i < 16; i++ {
		buf = append(buf, 0xff)
	}
	return buf
}

// makeStagingKey generates a key in the bulk-load staging area.
// Format: prefix:tenant:id
func makeStagingKey(tenant core.TenantID, id core.ID) []byte {
	buf := make([]byte, 0, len(noteStaging)+1+16)
	buf = append(buf, noteStaging...)
	buf = append(buf, ':')
	buf = appendUint64(buf, uint64(tenant))
	return appendUint64(buf, uint64(id))
}

// makeCheckpointKey generates the key for a tenant's backfill checkpoint.
// Format: prefix:tenant
func makeCheckpointKey(tenant core.TenantID) []byte {
	buf := make([]byte, 0, len(noteCkpt)+1+8)
	buf = append(buf, noteCkpt...)
	buf = append(buf, ':')
	return appendUint64(buf, uint64(tenant))
}
