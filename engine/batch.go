package engine

import (
	"encoding/binary"
	"fmt"
)

// One committed transaction is persisted to its table's WAL as a batch:
// an 8-byte little-endian sequence number, a uvarint op count, then each
// op as a 1-byte kind followed by its operands.
//
//	opPut:           [kind][8-byte big-endian id][uvarint n][n-byte entry blob]
//	opDelete:        [kind][8-byte big-endian id]
//	opTruncateRange: [kind][1-byte bound flags][8-byte start][8-byte end]
//
// The put blob is the encodeEntry output, stored verbatim so replay can
// re-insert it without re-encoding.

const (
	boundFlagStart = 1 << 0
	boundFlagEnd   = 1 << 1
)

func encodeOps(seq uint64, ops []pendingOp) []byte {
	out := make([]byte, 0, 16+len(ops)*18)
	out = binary.LittleEndian.AppendUint64(out, seq)
	out = binary.AppendUvarint(out, uint64(len(ops)))
	for _, op := range ops {
		out = append(out, byte(op.kind))
		switch op.kind {
		case opPut:
			out = binary.BigEndian.AppendUint64(out, uint64(op.id))
			out = binary.AppendUvarint(out, uint64(len(op.blob)))
			out = append(out, op.blob...)
		case opDelete:
			out = binary.BigEndian.AppendUint64(out, uint64(op.id))
		case opTruncateRange:
			var flags byte
			if op.hasStart {
				flags |= boundFlagStart
			}
			if op.hasEnd {
				flags |= boundFlagEnd
			}
			out = append(out, flags)
			out = binary.BigEndian.AppendUint64(out, uint64(op.startID))
			out = binary.BigEndian.AppendUint64(out, uint64(op.endID))
		}
	}
	return out
}

func decodeOps(data []byte) (seq uint64, ops []pendingOp, err error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("%w: batch too short", ErrCorrupt)
	}
	seq = binary.LittleEndian.Uint64(data[:8])
	rest := data[8:]

	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: bad batch count", ErrCorrupt)
	}
	rest = rest[n:]

	ops = make([]pendingOp, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(rest) < 1 {
			return 0, nil, fmt.Errorf("%w: truncated batch op", ErrCorrupt)
		}
		kind := opKind(rest[0])
		rest = rest[1:]

		switch kind {
		case opPut:
			if len(rest) < 8 {
				return 0, nil, fmt.Errorf("%w: truncated put", ErrCorrupt)
			}
			id := int64(binary.BigEndian.Uint64(rest[:8]))
			rest = rest[8:]
			blobLen, n := binary.Uvarint(rest)
			if n <= 0 || uint64(len(rest[n:])) < blobLen {
				return 0, nil, fmt.Errorf("%w: truncated put blob", ErrCorrupt)
			}
			rest = rest[n:]
			ops = append(ops, pendingOp{kind: opPut, id: id, blob: rest[:blobLen]})
			rest = rest[blobLen:]
		case opDelete:
			if len(rest) < 8 {
				return 0, nil, fmt.Errorf("%w: truncated delete", ErrCorrupt)
			}
			ops = append(ops, pendingOp{kind: opDelete, id: int64(binary.BigEndian.Uint64(rest[:8]))})
			rest = rest[8:]
		case opTruncateRange:
			if len(rest) < 1+16 {
				return 0, nil, fmt.Errorf("%w: truncated range delete", ErrCorrupt)
			}
			flags := rest[0]
			ops = append(ops, pendingOp{
				kind:     opTruncateRange,
				startID:  int64(binary.BigEndian.Uint64(rest[1:9])),
				endID:    int64(binary.BigEndian.Uint64(rest[9:17])),
				hasStart: flags&boundFlagStart != 0,
				hasEnd:   flags&boundFlagEnd != 0,
			})
			rest = rest[17:]
		default:
			return 0, nil, fmt.Errorf("%w: unknown batch op kind %d", ErrCorrupt, kind)
		}
	}
	if len(rest) != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes after batch", ErrCorrupt, len(rest))
	}
	return seq, ops, nil
}
