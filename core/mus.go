package core

import (
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Hand-composed MUS serializers for the types persisted in BadgerDB.
// Field order is part of the storage format and must not change.

var (
	// IDMUS serializes ID values.
	IDMUS = idMUS{}

	// TenantIDMUS serializes TenantID values.
	TenantIDMUS = tenantIDMUS{}

	// NoteMUS serializes Note values.
	NoteMUS = noteMUS{}

	// BackfillCheckpointMUS serializes BackfillCheckpoint values.
	BackfillCheckpointMUS = backfillCheckpointMUS{}

	// VectorMUS serializes bare embedding vectors (used by staging areas).
	VectorMUS = ord.NewSliceSer[float32](raw.Float32)

	timeMicroMUS = timeMUS{}
	tagsMUS      = ord.NewSliceSer[string](ord.String)
	metadataMUS  = ord.NewMapSer[string, string](ord.String, ord.String)
)

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

type tenantIDMUS struct{}

func (tenantIDMUS) Marshal(t TenantID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(t), bs)
}

func (tenantIDMUS) Unmarshal(bs []byte) (TenantID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return TenantID(v), n, err
}

func (tenantIDMUS) Size(t TenantID) int {
	return varint.Uint64.Size(uint64(t))
}

func (tenantIDMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// zeroTimeMicros marks the zero time.Time on the wire. The zero value cannot
// round-trip through UnixMicro, so it gets a sentinel.
const zeroTimeMicros = math.MinInt64

type timeMUS struct{}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	if t.IsZero() {
		return varint.Int64.Marshal(zeroTimeMicros, bs)
	}
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || v == zeroTimeMicros {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, err
}

func (timeMUS) Size(t time.Time) int {
	if t.IsZero() {
		return varint.Int64.Size(zeroTimeMicros)
	}
	return varint.Int64.Size(t.UnixMicro())
}

func (timeMUS) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

type noteMUS struct{}

func (noteMUS) Marshal(note Note, bs []byte) (n int) {
	n = IDMUS.Marshal(note.Id, bs)
	n += TenantIDMUS.Marshal(note.Tenant, bs[n:])
	n += ord.String.Marshal(note.Content, bs[n:])
	n += timeMicroMUS.Marshal(note.CreatedAt, bs[n:])
	n += timeMicroMUS.Marshal(note.UpdatedAt, bs[n:])
	n += tagsMUS.Marshal(note.Tags, bs[n:])
	n += ord.String.Marshal(note.Category, bs[n:])
	n += metadataMUS.Marshal(note.Metadata, bs[n:])
	n += VectorMUS.Marshal(note.Vector, bs[n:])
	return n
}

func (noteMUS) Unmarshal(bs []byte) (note Note, n int, err error) {
	var k int
	if note.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if note.Tenant, k, err = TenantIDMUS.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.Content, k, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.CreatedAt, k, err = timeMicroMUS.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.UpdatedAt, k, err = timeMicroMUS.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.Tags, k, err = tagsMUS.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.Category, k, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.Metadata, k, err = metadataMUS.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	if note.Vector, k, err = VectorMUS.Unmarshal(bs[n:]); err != nil {
		return note, n + k, err
	}
	n += k
	return note, n, nil
}

func (noteMUS) Size(note Note) (size int) {
	size = IDMUS.Size(note.Id)
	size += TenantIDMUS.Size(note.Tenant)
	size += ord.String.Size(note.Content)
	size += timeMicroMUS.Size(note.CreatedAt)
	size += timeMicroMUS.Size(note.UpdatedAt)
	size += tagsMUS.Size(note.Tags)
	size += ord.String.Size(note.Category)
	size += metadataMUS.Size(note.Metadata)
	size += VectorMUS.Size(note.Vector)
	return size
}

type backfillCheckpointMUS struct{}

func (backfillCheckpointMUS) Marshal(cp BackfillCheckpoint, bs []byte) (n int) {
	n = TenantIDMUS.Marshal(cp.Tenant, bs)
	n += varint.Uint64.Marshal(cp.Processed, bs[n:])
	n += varint.Uint64.Marshal(cp.Skipped, bs[n:])
	n += timeMicroMUS.Marshal(cp.UpdatedAt, bs[n:])
	return n
}

func (backfillCheckpointMUS) Unmarshal(bs []byte) (cp BackfillCheckpoint, n int, err error) {
	var k int
	if cp.Tenant, n, err = TenantIDMUS.Unmarshal(bs); err != nil {
		return
	}
	if cp.Processed, k, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return cp, n + k, err
	}
	n += k
	if cp.Skipped, k, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return cp, n + k, err
	}
	n += k
	if cp.UpdatedAt, k, err = timeMicroMUS.Unmarshal(bs[n:]); err != nil {
		return cp, n + k, err
	}
	n += k
	return cp, n, nil
}

func (backfillCheckpointMUS) Size(cp BackfillCheckpoint) (size int) {
	size = TenantIDMUS.Size(cp.Tenant)
	size += varint.Uint64.Size(cp.Processed)
	size += varint.Uint64.Size(cp.Skipped)
	size += timeMicroMUS.Size(cp.UpdatedAt)
	return size
}

func (backfillCheckpointMUS) Skip(bs []byte) (n int, err error) {
	var k int
	for _, skip := range []func([]byte) (int, error){
		TenantIDMUS.Skip,
		varint.Uint64.Skip,
		varint.Uint64.Skip,
		timeMicroMUS.Skip,
	} {
		if k, err = skip(bs[n:]); err != nil {
			return n + k, err
		}
		n += k
	}
	return n, nil
}

func (noteMUS) Skip(bs []byte) (n int, err error) {
	var k int
	for _, skip := range []func([]byte) (int, error){
		IDMUS.Skip,
		TenantIDMUS.Skip,
		ord.String.Skip,
		timeMicroMUS.Skip,
		timeMicroMUS.Skip,
		tagsMUS.Skip,
		ord.String.Skip,
		metadataMUS.Skip,
		VectorMUS.Skip,
	} {
		if k, err = skip(bs[n:]); err != nil {
			return n + k, err
		}
		n += k
	}
	return n, nil
}
