package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Meta is page 0: the durable root of the whole database. It records the
// format salt, storage feature flags, page-allocation watermarks, the
// checkpoint LSN, and every component tree's persisted root page id so a
// reopen finds the same layout (spec.md §6 "Meta-page fields").
const (
	MetaMagic           = "SOMBRAv1"
	MetaFormatVersion    = uint32(1)
	metaHeaderReserved  = 8 // common page header within page 0
)

// FeatureFlag is a bitmask of optional on-disk features.
type FeatureFlag uint64

const (
	FeatureDegreeCache    FeatureFlag = 1 << 0
	FeatureRowHash        FeatureFlag = 1 << 1
	FeatureInlineHistory  FeatureFlag = 1 << 2
	FeatureBTreeInPlace   FeatureFlag = 1 << 3
	FeatureDeferAdjacency FeatureFlag = 1 << 4
	FeatureDeferIndex     FeatureFlag = 1 << 5
)

// Meta mirrors the fields persisted on page 0.
type Meta struct {
	Salt     uint64
	PageSize uint32
	Flags    FeatureFlag

	NodeRoot       PageID
	EdgeRoot       PageID
	AdjFwdRoot     PageID
	AdjRevRoot     PageID
	AdjOverflowRoot PageID
	DegreeRoot     PageID
	VersionLog     PageID
	FreeListRoot   PageID

	IndexCatalogRoot PageID
	LabelIndexRoot   PageID
	PropChunkRoot    PageID
	PropBTreeRoot    PageID

	NextNodeID uint64
	NextEdgeID uint64

	InlinePropBlob  uint32
	InlinePropValue uint32

	DDLEpoch uint64

	NextCommitID    uint64
	NextPageID      uint64
	NextVersionPtr  uint64
	CheckpointLSN   LSN
}

// metaLayout: offsets within the page, after the common 32-byte header.
const (
	offMagic            = HeaderSize
	offFormatVersion    = offMagic + 8
	offSalt             = offFormatVersion + 4
	offPageSize         = offSalt + 8
	offFlags            = offPageSize + 4
	offNodeRoot         = offFlags + 8
	offEdgeRoot         = offNodeRoot + 8
	offAdjFwdRoot       = offEdgeRoot + 8
	offAdjRevRoot       = offAdjFwdRoot + 8
	offAdjOverflowRoot  = offAdjRevRoot + 8
	offDegreeRoot       = offAdjOverflowRoot + 8
	offVersionLog       = offDegreeRoot + 8
	offFreeListRoot     = offVersionLog + 8
	offIndexCatalogRoot = offFreeListRoot + 8
	offLabelIndexRoot   = offIndexCatalogRoot + 8
	offPropChunkRoot    = offLabelIndexRoot + 8
	offPropBTreeRoot    = offPropChunkRoot + 8
	offNextNodeID       = offPropBTreeRoot + 8
	offNextEdgeID       = offNextNodeID + 8
	offInlinePropBlob   = offNextEdgeID + 8
	offInlinePropValue  = offInlinePropBlob + 4
	offDDLEpoch         = offInlinePropValue + 4
	offNextCommitID     = offDDLEpoch + 8
	offNextPageID       = offNextCommitID + 8
	offNextVersionPtr   = offNextPageID + 8
	offCheckpointLSN    = offNextVersionPtr + 8
	offMetaCRC          = offCheckpointLSN + 8
	metaEncodedSize     = offMetaCRC + 4
)

// NewMeta returns the default meta for a freshly created database.
func NewMeta(pageSize int, salt uint64) *Meta {
	return &Meta{
		Salt:            salt,
		PageSize:        uint32(pageSize),
		InlinePropBlob:  128,
		InlinePropValue: 48,
		NextNodeID:      1,
		NextEdgeID:      1,
		NextCommitID:    1,
		NextPageID:      1,
		NextVersionPtr:  1,
	}
}

// Marshal encodes m into a full page-sized buffer, including the common
// page header and CRC32.
func (m *Meta) Marshal(pageSize int) []byte {
	buf := NewPage(pageSize, PageTypeMeta, PageID(0))
	if len(buf) < metaEncodedSize {
		panic("pager: page size too small for meta page")
	}
	copy(buf[offMagic:], MetaMagic)
	binary.LittleEndian.PutUint32(buf[offFormatVersion:], MetaFormatVersion)
	binary.LittleEndian.PutUint64(buf[offSalt:], m.Salt)
	binary.LittleEndian.PutUint32(buf[offPageSize:], m.PageSize)
	binary.LittleEndian.PutUint64(buf[offFlags:], uint64(m.Flags))
	binary.LittleEndian.PutUint64(buf[offNodeRoot:], uint64(m.NodeRoot))
	binary.LittleEndian.PutUint64(buf[offEdgeRoot:], uint64(m.EdgeRoot))
	binary.LittleEndian.PutUint64(buf[offAdjFwdRoot:], uint64(m.AdjFwdRoot))
	binary.LittleEndian.PutUint64(buf[offAdjRevRoot:], uint64(m.AdjRevRoot))
	binary.LittleEndian.PutUint64(buf[offAdjOverflowRoot:], uint64(m.AdjOverflowRoot))
	binary.LittleEndian.PutUint64(buf[offDegreeRoot:], uint64(m.DegreeRoot))
	binary.LittleEndian.PutUint64(buf[offVersionLog:], uint64(m.VersionLog))
	binary.LittleEndian.PutUint64(buf[offFreeListRoot:], uint64(m.FreeListRoot))
	binary.LittleEndian.PutUint64(buf[offIndexCatalogRoot:], uint64(m.IndexCatalogRoot))
	binary.LittleEndian.PutUint64(buf[offLabelIndexRoot:], uint64(m.LabelIndexRoot))
	binary.LittleEndian.PutUint64(buf[offPropChunkRoot:], uint64(m.PropChunkRoot))
	binary.LittleEndian.PutUint64(buf[offPropBTreeRoot:], uint64(m.PropBTreeRoot))
	binary.LittleEndian.PutUint64(buf[offNextNodeID:], m.NextNodeID)
	binary.LittleEndian.PutUint64(buf[offNextEdgeID:], m.NextEdgeID)
	binary.LittleEndian.PutUint32(buf[offInlinePropBlob:], m.InlinePropBlob)
	binary.LittleEndian.PutUint32(buf[offInlinePropValue:], m.InlinePropValue)
	binary.LittleEndian.PutUint64(buf[offDDLEpoch:], m.DDLEpoch)
	binary.LittleEndian.PutUint64(buf[offNextCommitID:], m.NextCommitID)
	binary.LittleEndian.PutUint64(buf[offNextPageID:], m.NextPageID)
	binary.LittleEndian.PutUint64(buf[offNextVersionPtr:], m.NextVersionPtr)
	binary.LittleEndian.PutUint64(buf[offCheckpointLSN:], uint64(m.CheckpointLSN))
	c := crc32.Checksum(buf[offMagic:offMetaCRC], crcTable)
	binary.LittleEndian.PutUint32(buf[offMetaCRC:], c)
	SetPageCRC(buf)
	return buf
}

// UnmarshalMeta decodes a meta page previously produced by Marshal.
func UnmarshalMeta(buf []byte) (*Meta, error) {
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	if len(buf) < metaEncodedSize {
		return nil, &CorruptionError{Reason: "meta page truncated"}
	}
	if string(buf[offMagic:offMagic+8]) != MetaMagic {
		return nil, &CorruptionError{Reason: "bad meta magic"}
	}
	if v := binary.LittleEndian.Uint32(buf[offFormatVersion:]); v != MetaFormatVersion {
		return nil, &CorruptionError{Reason: fmt.Sprintf("unsupported meta format version %d", v)}
	}
	stored := binary.LittleEndian.Uint32(buf[offMetaCRC:])
	if computed := crc32.Checksum(buf[offMagic:offMetaCRC], crcTable); stored != computed {
		return nil, &CorruptionError{Reason: "meta CRC mismatch"}
	}
	m := &Meta{
		Salt:             binary.LittleEndian.Uint64(buf[offSalt:]),
		PageSize:         binary.LittleEndian.Uint32(buf[offPageSize:]),
		Flags:            FeatureFlag(binary.LittleEndian.Uint64(buf[offFlags:])),
		NodeRoot:         PageID(binary.LittleEndian.Uint64(buf[offNodeRoot:])),
		EdgeRoot:         PageID(binary.LittleEndian.Uint64(buf[offEdgeRoot:])),
		AdjFwdRoot:       PageID(binary.LittleEndian.Uint64(buf[offAdjFwdRoot:])),
		AdjRevRoot:       PageID(binary.LittleEndian.Uint64(buf[offAdjRevRoot:])),
		AdjOverflowRoot:  PageID(binary.LittleEndian.Uint64(buf[offAdjOverflowRoot:])),
		DegreeRoot:       PageID(binary.LittleEndian.Uint64(buf[offDegreeRoot:])),
		VersionLog:       PageID(binary.LittleEndian.Uint64(buf[offVersionLog:])),
		FreeListRoot:     PageID(binary.LittleEndian.Uint64(buf[offFreeListRoot:])),
		IndexCatalogRoot: PageID(binary.LittleEndian.Uint64(buf[offIndexCatalogRoot:])),
		LabelIndexRoot:   PageID(binary.LittleEndian.Uint64(buf[offLabelIndexRoot:])),
		PropChunkRoot:    PageID(binary.LittleEndian.Uint64(buf[offPropChunkRoot:])),
		PropBTreeRoot:    PageID(binary.LittleEndian.Uint64(buf[offPropBTreeRoot:])),
		NextNodeID:       binary.LittleEndian.Uint64(buf[offNextNodeID:]),
		NextEdgeID:       binary.LittleEndian.Uint64(buf[offNextEdgeID:]),
		InlinePropBlob:   binary.LittleEndian.Uint32(buf[offInlinePropBlob:]),
		InlinePropValue:  binary.LittleEndian.Uint32(buf[offInlinePropValue:]),
		DDLEpoch:         binary.LittleEndian.Uint64(buf[offDDLEpoch:]),
		NextCommitID:     binary.LittleEndian.Uint64(buf[offNextCommitID:]),
		NextPageID:       binary.LittleEndian.Uint64(buf[offNextPageID:]),
		NextVersionPtr:   binary.LittleEndian.Uint64(buf[offNextVersionPtr:]),
		CheckpointLSN:    LSN(binary.LittleEndian.Uint64(buf[offCheckpointLSN:])),
	}
	return m, nil
}

// Clone returns a deep copy, used so update_meta callbacks can mutate a
// scratch copy and the pager only publishes it on success.
func (m *Meta) Clone() *Meta {
	cp := *m
	return &cp
}
