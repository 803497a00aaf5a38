package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GenesisHash is the previous_hash of the first entry in every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EventType names the mutation an entry records.
type EventType string

const (
	EventCropRegistered     EventType = "CROP_REGISTERED"
	EventTokenListed        EventType = "TOKEN_LISTED"
	EventSettlementExecuted EventType = "SETTLEMENT_EXECUTED"
	EventWalletDeposited    EventType = "WALLET_DEPOSITED"
)

// Entry is a single record in the audit chain.
type Entry struct {
	Seq          int64           `json:"seq"`
	EventType    EventType       `json:"event_type"`
	Actor        string          `json:"actor"`
	Data         Payload         `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	PreviousHash string          `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
}

// Payload is the canonical JSON an entry was appended with. Stored bytes
// that are no longer valid JSON encode as a JSON string so a damaged entry
// still renders.
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	switch {
	case len(p) == 0:
		return []byte("null"), nil
	case json.Valid(p):
		return p, nil
	default:
		return json.Marshal(string(p))
	}
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

// Next builds the entry that follows prev (nil for an empty chain).
// payload is JSON-encoded once and the resulting bytes are both stored and
// hashed, so the hash never depends on re-encoding.
func Next(prev *Entry, eventType EventType, actor string, payload any, now time.Time) (*Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	e := &Entry{
		Seq:          1,
		EventType:    eventType,
		Actor:        actor,
		Data:         data,
		Timestamp:    Timestamp(now),
		PreviousHash: GenesisHash,
	}
	if prev != nil {
		e.Seq = prev.Seq + 1
		e.PreviousHash = prev.CurrentHash
	}
	e.CurrentHash = Hash(e)
	return e, nil
}

// Timestamp normalises t to the precision every store can round-trip.
// PostgreSQL keeps microseconds, so nothing finer may enter the hash.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Hash computes the SHA-256 hash of an entry's fields, excluding CurrentHash.
// Each field is written as "<len>:<bytes>", so no choice of field contents
// can move a boundary between two fields and keep the same digest.
func Hash(e *Entry) string {
	h := sha256.New()
	for _, field := range [][]byte{
		strconv.AppendInt(nil, e.Seq, 10),
		[]byte(e.EventType),
		[]byte(e.Actor),
		e.Data,
		[]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)),
		[]byte(e.PreviousHash),
	} {
		fmt.Fprintf(h, "%d:", len(field))
		h.Write(field)
	}
	return hex.EncodeToString(h.Sum(nil))
}
