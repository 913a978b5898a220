package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// ErrTruncatedHeader names the case of a reader hitting EOF mid-header: the
// last record was only partially flushed to disk (e.g. a crash mid-write).
// ReadAll does not return it; it stops at such a record with a nil error
// and reports the record's offset as goodOffset.
var ErrTruncatedHeader = errors.New("wal: truncated record header")

// ReadAll scans path from the beginning, decoding every well-formed
// record. It stops at the first corrupt or partially-written record and
// returns the records read so far along with the byte offset of that bad
// record (goodOffset), so the caller can Truncate to it.
//
// Grounded on the teacher's EventLog.Replay (separate read-only file
// handle, gap/checksum detection) and
// original_source/include/core/event_sourcing.h's replay_events.
func ReadAll(path string) (recs []Record, goodOffset int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("wal: open for read: %w", err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	var offset int64

	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF {
				break
			}
			// Partial header: treat everything before offset as good,
			// stop here (crash mid-write of the next record).
			break
		}

		recType, payloadLen, checksum, ts := decodeHeader(header)

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(f, payload); err != nil {
			break
		}

		if !verify(payload, checksum) {
			return recs, offset, ErrCorruption
		}

		recs = append(recs, Record{Type: recType, Timestamp: ts, Payload: payload})
		offset += int64(headerSize) + int64(payloadLen)
	}

	return recs, offset, nil
}

// Truncate rewrites path to contain only the first goodOffset bytes,
// discarding anything after — used on corruption or partial-write
// recovery per §6 ("truncate to last good record").
func Truncate(path string, goodOffset int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wal: open for truncate: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(goodOffset); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	return nil
}

// ReadUncommittedOrders scans recs for Order records whose sequence_id is
// strictly greater than afterSeq (the last checkpointed sequence) and
// returns those records still encoded; callers decode them with
// DecodeOrderPayload. Per §6, recovery replays
// everything past the last committed checkpoint.
func ReadUncommittedOrders(recs []Record, afterSeq scale.SequenceId) ([]Record, error) {
	var out []Record
	for _, r := range recs {
		if r.Type != RecordOrder {
			continue
		}
		seq := orderSequence(r.Payload)
		if seq > afterSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReadUncommittedTrades is the Trade-record analogue of
// ReadUncommittedOrders.
func ReadUncommittedTrades(recs []Record, afterSeq scale.SequenceId) ([]Record, error) {
	var out []Record
	for _, r := range recs {
		if r.Type != RecordTrade {
			continue
		}
		seq := tradeSequence(r.Payload)
		if seq > afterSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

// LastCheckpoint scans recs backward for the most recent Checkpoint
// record, returning its decoded payload. ok is false if recs has no
// checkpoint, meaning recovery must replay from the start of the log.
func LastCheckpoint(recs []Record) (cp Checkpoint, ok bool) {
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Type == RecordCheckpoint {
			decoded, err := DecodeCheckpointPayload(recs[i].Payload)
			if err != nil {
				continue
			}
			return decoded, true
		}
	}
	return Checkpoint{}, false
}

// orderSequence reads just the sequence_id field out of an Order payload
// without allocating a full Order, for the hot recovery-filter path.
func orderSequence(payload []byte) scale.SequenceId {
	if len(payload) != OrderPayloadSize {
		return 0
	}
	return scale.SequenceId(binary.LittleEndian.Uint64(payload[OrderPayloadSize-8:]))
}

// tradeSequence is the Trade payload analogue of orderSequence.
func tradeSequence(payload []byte) scale.SequenceId {
	if len(payload) < 8 {
		return 0
	}
	return scale.SequenceId(binary.LittleEndian.Uint64(payload[0:8]))
}
