package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// WAL file format — physical (full-page-image) logging.
//
// File header (first 32 bytes):
//
//	[0:8]   Magic      "TNSQWAL\x00"
//	[8:12]  Version    uint32 LE
//	[12:16] PageSize   uint32 LE
//	[16:24] Reserved
//	[24:28] HeaderCRC  uint32 LE (CRC of bytes 0:24)
//	[28:32] Padding
//
// Record (variable length):
//
//	[0]     RecordType  (1 byte)
//	[1:5]   Reserved
//	[5:13]  LSN         (uint64 LE)
//	[13:21] TxID        (uint64 LE)
//	[21:29] PageID      (uint64 LE, only meaningful for PAGE_IMAGE)
//	[29:33] DataLen     (uint32 LE)
//	[33:37] RecordCRC   (uint32 LE, header+data with CRC field zeroed)
//	[37:37+DataLen] Data
const (
	WALMagic       = "TNSQWAL\x00"
	WALVersion     = uint32(1)
	WALFileHdrSize = 32
	WALRecHdrSize  = 37
)

// RecordType identifies the kind of WAL record.
type RecordType uint8

const (
	RecordBegin      RecordType = 0x01
	RecordPageImage  RecordType = 0x02
	RecordCommit     RecordType = 0x03
	RecordAbort      RecordType = 0x04
	RecordCheckpoint RecordType = 0x05
)

func (rt RecordType) String() string {
	switch rt {
	case RecordBegin:
		return "BEGIN"
	case RecordPageImage:
		return "PAGE_IMAGE"
	case RecordCommit:
		return "COMMIT"
	case RecordAbort:
		return "ABORT"
	case RecordCheckpoint:
		return "CHECKPOINT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(rt))
	}
}

// Record is an in-memory representation of a WAL record.
type Record struct {
	Type   RecordType
	LSN    LSN
	TxID   TxID
	PageID PageID
	Data   []byte
}

// TxID identifies one writer's in-flight transaction against the WAL.
type TxID uint64

// walFile manages the append-only WAL file.
type walFile struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	pageSize int
	nextLSN  LSN
	writePos int64
}

func openWALFile(path string, pageSize int) (*walFile, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open WAL: %w", err)
	}
	wf := &walFile{f: f, path: path, pageSize: pageSize, nextLSN: 1}
	if exists {
		if err := wf.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := wf.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	endPos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: seek WAL end: %w", err)
	}
	wf.writePos = endPos
	return wf, nil
}

func (wf *walFile) writeHeader() error {
	var hdr [WALFileHdrSize]byte
	copy(hdr[0:8], WALMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], WALVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(wf.pageSize))
	c := crc32.Checksum(hdr[:24], crcTable)
	binary.LittleEndian.PutUint32(hdr[24:28], c)
	if _, err := wf.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("pager: write WAL header: %w", err)
	}
	return wf.f.Sync()
}

func (wf *walFile) validateHeader() error {
	var hdr [WALFileHdrSize]byte
	n, err := wf.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("pager: read WAL header: %w", err)
	}
	if n < WALFileHdrSize {
		return &CorruptionError{Reason: fmt.Sprintf("WAL header too short: %d bytes", n)}
	}
	if string(hdr[0:8]) != WALMagic {
		return &CorruptionError{Reason: "bad WAL magic"}
	}
	if ver := binary.LittleEndian.Uint32(hdr[8:12]); ver != WALVersion {
		return &CorruptionError{Reason: fmt.Sprintf("unsupported WAL version %d", ver)}
	}
	if ps := binary.LittleEndian.Uint32(hdr[12:16]); int(ps) != wf.pageSize {
		return &CorruptionError{Reason: fmt.Sprintf("WAL page size %d != expected %d", ps, wf.pageSize)}
	}
	stored := binary.LittleEndian.Uint32(hdr[24:28])
	if computed := crc32.Checksum(hdr[:24], crcTable); stored != computed {
		return &CorruptionError{Reason: "WAL header CRC mismatch"}
	}
	return nil
}

// appendRecord writes a WAL record and assigns it a monotonic LSN.
func (wf *walFile) appendRecord(rec *Record) (LSN, error) {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	lsn := wf.nextLSN
	wf.nextLSN++
	rec.LSN = lsn

	data := marshalRecord(rec)
	n, err := wf.f.WriteAt(data, wf.writePos)
	if err != nil {
		return 0, fmt.Errorf("pager: WAL append: %w", err)
	}
	wf.writePos += int64(n)
	return lsn, nil
}

func (wf *walFile) sync() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.f.Sync()
}

func (wf *walFile) close() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.f.Close()
}

// truncate resets the WAL to just the header, after a checkpoint.
func (wf *walFile) truncate() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if err := wf.f.Truncate(WALFileHdrSize); err != nil {
		return err
	}
	wf.writePos = WALFileHdrSize
	return wf.f.Sync()
}

func marshalRecord(rec *Record) []byte {
	dataLen := len(rec.Data)
	buf := make([]byte, WALRecHdrSize+dataLen)
	buf[0] = byte(rec.Type)
	binary.LittleEndian.PutUint64(buf[5:13], uint64(rec.LSN))
	binary.LittleEndian.PutUint64(buf[13:21], uint64(rec.TxID))
	binary.LittleEndian.PutUint64(buf[21:29], uint64(rec.PageID))
	binary.LittleEndian.PutUint32(buf[29:33], uint32(dataLen))
	if dataLen > 0 {
		copy(buf[WALRecHdrSize:], rec.Data)
	}
	h := crc32.New(crcTable)
	h.Write(buf[:33])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(buf[WALRecHdrSize:])
	binary.LittleEndian.PutUint32(buf[33:37], h.Sum32())
	return buf
}

func unmarshalRecord(r io.Reader) (*Record, error) {
	var hdr [WALRecHdrSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	rec := &Record{
		Type:   RecordType(hdr[0]),
		LSN:    LSN(binary.LittleEndian.Uint64(hdr[5:13])),
		TxID:   TxID(binary.LittleEndian.Uint64(hdr[13:21])),
		PageID: PageID(binary.LittleEndian.Uint64(hdr[21:29])),
	}
	dataLen := int(binary.LittleEndian.Uint32(hdr[29:33]))
	storedCRC := binary.LittleEndian.Uint32(hdr[33:37])

	var data []byte
	if dataLen > 0 {
		data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("pager: WAL record data: %w", err)
		}
		rec.Data = data
	}

	h := crc32.New(crcTable)
	h.Write(hdr[:33])
	h.Write([]byte{0, 0, 0, 0})
	if data != nil {
		h.Write(data)
	}
	if h.Sum32() != storedCRC {
		return nil, &CorruptionError{Reason: fmt.Sprintf("WAL record CRC mismatch at LSN %d", rec.LSN)}
	}
	return rec, nil
}

// readAllRecords reads every WAL record in path. A partial/corrupt record
// at the tail (crash truncation) stops iteration without error.
func readAllRecords(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(WALFileHdrSize, io.SeekStart); err != nil {
		return nil, err
	}
	var records []*Record
	for {
		rec, err := unmarshalRecord(f)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}
