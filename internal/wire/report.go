// Package wire implements the binary and JSON frame formats exchanged with
// the data-plane agent: fixed-layout report frames on the inbound socket and
// JSON command envelopes on the outbound socket, both behind the same
// 4-byte big-endian length prefix.
package wire

import "encoding/binary"

// MaxDataElems bounds a single ReportEntry's data array.
const MaxDataElems = 50

// reportHeaderSize is the on-wire size of flow_id (u32) + chunk_id (i16) +
// chunk_len (u16), little-endian.
const reportHeaderSize = 4 + 2 + 2

// reportElemSize is the on-wire size of one ReportDataElem: four
// little-endian u32 fields (rtt, acked_bytes, lost_bytes, timestamp).
const reportElemSize = 4 * 4

// ReportDataElem is a single ack sample. Immutable once produced.
type ReportDataElem struct {
	RTT        uint32 // microseconds
	AckedBytes uint32
	LostBytes  uint32
	Timestamp  uint32 // microseconds since an agent-defined epoch
}

// ReportEntry is a framed batch of samples for one flow. ChunkID < 0 is the
// end-of-interval sentinel; ChunkLen is the number of valid entries in
// DataArray and must be <= len(DataArray).
type ReportEntry struct {
	FlowID    uint32
	ChunkID   int16
	ChunkLen  uint16
	DataArray []ReportDataElem
}

// EndOfInterval reports whether this frame closes the current reporting
// interval.
func (r ReportEntry) EndOfInterval() bool {
	return r.ChunkID < 0
}

// DecodeReportEntry parses a data frame payload (length >= 64).
// header is the first reportHeaderSize bytes, body is the remainder up to
// the frame's declared length; trailing bytes beyond chunk_len*16 are
// reserved and are simply not consumed into DataArray.
func DecodeReportEntry(payload []byte) (ReportEntry, bool) {
	if len(payload) < reportHeaderSize {
		return ReportEntry{}, false
	}
	flowID := binary.LittleEndian.Uint32(payload[0:4])
	chunkID := int16(binary.LittleEndian.Uint16(payload[4:6]))
	chunkLen := binary.LittleEndian.Uint16(payload[6:8])

	body := payload[reportHeaderSize:]
	n := int(chunkLen)
	if n > MaxDataElems {
		return ReportEntry{}, false
	}
	if len(body) < n*reportElemSize {
		return ReportEntry{}, false
	}

	elems := make([]ReportDataElem, n)
	for i := 0; i < n; i++ {
		off := i * reportElemSize
		elems[i] = ReportDataElem{
			RTT:        binary.LittleEndian.Uint32(body[off : off+4]),
			AckedBytes: binary.LittleEndian.Uint32(body[off+4 : off+8]),
			LostBytes:  binary.LittleEndian.Uint32(body[off+8 : off+12]),
			Timestamp:  binary.LittleEndian.Uint32(body[off+12 : off+16]),
		}
	}

	return ReportEntry{
		FlowID:    flowID,
		ChunkID:   chunkID,
		ChunkLen:  chunkLen,
		DataArray: elems,
	}, true
}

// EncodeReportEntry serialises a ReportEntry back into the binary
// layout. It only ever appears in tests, to check the frame round-trip
// law, but the agent side is out of scope so this is not used on the hot
// path.
func EncodeReportEntry(r ReportEntry) []byte {
	buf := make([]byte, reportHeaderSize+len(r.DataArray)*reportElemSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.FlowID)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(r.ChunkID))
	binary.LittleEndian.PutUint16(buf[6:8], r.ChunkLen)
	for i, e := range r.DataArray {
		off := reportHeaderSize + i*reportElemSize
		binary.LittleEndian.PutUint32(buf[off:off+4], e.RTT)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.AckedBytes)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.LostBytes)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], e.Timestamp)
	}
	return buf
}
