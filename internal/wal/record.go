// Package wal implements the write-ahead log (§4.G): an append-only binary
// record stream backing crash recovery, with group-commit batching and
// CRC-32 integrity checks.
//
// Adapted from the teacher's internal/events/log.go (EventLog), which
// itself documents its gob encoding as a simplification. This package
// replaces that with the bit-exact binary layout of §6: every record is
// `record_type(u8) | payload_len(u32) | checksum(u32) | timestamp(i64) |
// payload`, little-endian, checksummed with a real CRC-32 of the payload
// bytes rather than the teacher's fmt.Sprintf-of-the-struct checksum.
package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
)

// RecordType identifies the payload variant of a WAL record, per §6.
type RecordType uint8

const (
	RecordOrder      RecordType = 1
	RecordTrade      RecordType = 2
	RecordCheckpoint RecordType = 3
)

// headerSize is the fixed portion of every record: record_type(1) +
// payload_len(4) + checksum(4) + timestamp(8).
const headerSize = 1 + 4 + 4 + 8

// ErrCorruption is returned by the reader when a record's checksum does
// not match its payload. Per §6, this means the log is truncated to the
// last good record and a recovery warning is reported.
var ErrCorruption = errors.New("wal: checksum mismatch, record corrupted")

// Record is one decoded WAL entry.
type Record struct {
	Type      RecordType
	Timestamp scale.Timestamp
	Payload   []byte
}

// Encode serializes r to the exact §6 wire layout.
func (r Record) Encode() []byte {
	buf := make([]byte, headerSize+len(r.Payload))
	buf[0] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(r.Payload)))
	binary.LittleEndian.PutUint32(buf[5:9], crc32.ChecksumIEEE(r.Payload))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(r.Timestamp))
	copy(buf[17:], r.Payload)
	return buf
}

// decodeHeader parses the fixed header portion of a record, returning the
// expected payload length and checksum for the caller to verify once the
// payload bytes are read.
func decodeHeader(buf []byte) (recType RecordType, payloadLen uint32, checksum uint32, ts scale.Timestamp) {
	recType = RecordType(buf[0])
	payloadLen = binary.LittleEndian.Uint32(buf[1:5])
	checksum = binary.LittleEndian.Uint32(buf[5:9])
	ts = scale.Timestamp(binary.LittleEndian.Uint64(buf[9:17]))
	return
}

// verify reports whether payload matches its recorded CRC-32 checksum.
func verify(payload []byte, checksum uint32) bool {
	return crc32.ChecksumIEEE(payload) == checksum
}

// OrderPayloadSize is the fixed encoded size of an Order record payload.
const OrderPayloadSize = 8 + 8 + 4 + 1 + 1 + 8 + 8 + 8 + 1 + 8

// EncodeOrderPayload serializes an order snapshot per §6's Order payload
// layout: order_id | user_id | instrument_id | side | order_type | price |
// original_quantity | filled_quantity | status | sequence_id.
func EncodeOrderPayload(o *orders.Order) []byte {
	buf := make([]byte, OrderPayloadSize)
	i := 0
	binary.LittleEndian.PutUint64(buf[i:], uint64(o.ID))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(o.UserID))
	i += 8
	binary.LittleEndian.PutUint32(buf[i:], uint32(o.InstrumentID))
	i += 4
	buf[i] = byte(o.Side)
	i++
	buf[i] = byte(o.Type)
	i++
	binary.LittleEndian.PutUint64(buf[i:], uint64(o.Price))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(o.OriginalQuantity))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(o.FilledQuantity))
	i += 8
	buf[i] = byte(o.Status)
	i++
	binary.LittleEndian.PutUint64(buf[i:], uint64(o.SequenceID))
	return buf
}

// DecodeOrderPayload reconstructs the order snapshot fields encoded by
// EncodeOrderPayload.
func DecodeOrderPayload(buf []byte) (*orders.Order, error) {
	if len(buf) != OrderPayloadSize {
		return nil, ErrCorruption
	}
	o := &orders.Order{}
	i := 0
	o.ID = scale.OrderId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	o.UserID = scale.UserId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	o.InstrumentID = scale.InstrumentId(binary.LittleEndian.Uint32(buf[i:]))
	i += 4
	o.Side = orders.Side(buf[i])
	i++
	o.Type = orders.Type(buf[i])
	i++
	o.Price = scale.Price(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	o.OriginalQuantity = scale.Quantity(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	o.FilledQuantity = scale.Quantity(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	o.Status = orders.Status(buf[i])
	i++
	o.SequenceID = scale.SequenceId(binary.LittleEndian.Uint64(buf[i:]))
	return o, nil
}

// TradePayloadSize is the fixed encoded size of a Trade record payload.
const TradePayloadSize = 8 + 8 + 8 + 8 + 8 + 4 + 8 + 8 + 1

// EncodeTradePayload serializes a trade per §6's Trade payload layout:
// sequence_id | buy_order_id | sell_order_id | buy_user_id | sell_user_id |
// instrument_id | price | quantity | is_taker_buy.
func EncodeTradePayload(tr orders.Trade) []byte {
	buf := make([]byte, TradePayloadSize)
	i := 0
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.SequenceID))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.BuyOrderID))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.SellOrderID))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.BuyUserID))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.SellUserID))
	i += 8
	binary.LittleEndian.PutUint32(buf[i:], uint32(tr.InstrumentID))
	i += 4
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.Price))
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], uint64(tr.Quantity))
	i += 8
	if tr.IsTakerBuy {
		buf[i] = 1
	}
	return buf
}

// DecodeTradePayload reverses EncodeTradePayload.
func DecodeTradePayload(buf []byte) (orders.Trade, error) {
	if len(buf) != TradePayloadSize {
		return orders.Trade{}, ErrCorruption
	}
	var tr orders.Trade
	i := 0
	tr.SequenceID = scale.SequenceId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.BuyOrderID = scale.OrderId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.SellOrderID = scale.OrderId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.BuyUserID = scale.UserId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.SellUserID = scale.UserId(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.InstrumentID = scale.InstrumentId(binary.LittleEndian.Uint32(buf[i:]))
	i += 4
	tr.Price = scale.Price(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.Quantity = scale.Quantity(binary.LittleEndian.Uint64(buf[i:]))
	i += 8
	tr.IsTakerBuy = buf[i] != 0
	return tr, nil
}

// CheckpointPayloadSize is the fixed encoded size of a Checkpoint payload.
const CheckpointPayloadSize = 8 + 8

// Checkpoint marks the last sequence/timestamp committed before this point,
// used by recovery and truncate to skip already-applied records.
type Checkpoint struct {
	LastCommittedSequence  scale.SequenceId
	LastCommittedTimestamp scale.Timestamp
}

// EncodeCheckpointPayload serializes c per §6's Checkpoint payload layout.
func EncodeCheckpointPayload(c Checkpoint) []byte {
	buf := make([]byte, CheckpointPayloadSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(c.LastCommittedSequence))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(c.LastCommittedTimestamp))
	return buf
}

// DecodeCheckpointPayload reverses EncodeCheckpointPayload.
func DecodeCheckpointPayload(buf []byte) (Checkpoint, error) {
	if len(buf) != CheckpointPayloadSize {
		return Checkpoint{}, ErrCorruption
	}
	return Checkpoint{
		LastCommittedSequence:  scale.SequenceId(binary.LittleEndian.Uint64(buf[0:8])),
		LastCommittedTimestamp: scale.Timestamp(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}
