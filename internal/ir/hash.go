package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEvent = "rigs/event/v1"
	DomainTrace = "rigs/trace/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of an event. The ID covers the
// transaction, position, rig, kind and fields, so two identical replays of
// the same transaction sequence produce identical IDs.
func EventID(txID string, seq int64, rig, kind string, fields IRObject) (string, error) {
	obj := IRObject{
		"tx_id":  IRString(txID),
		"seq":    IRInt(seq),
		"rig":    IRString(rig),
		"kind":   IRString(kind),
		"fields": fields,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// TraceHash digests an ordered list of event IDs. Two runs of the same
// scenario must produce the same trace hash.
func TraceHash(ids []string) string {
	arr := make(IRArray, len(ids))
	for i, id := range ids {
		arr[i] = IRString(id)
	}
	// An array of strings always marshals.
	canonical, _ := MarshalCanonical(arr)
	return hashWithDomain(DomainTrace, canonical)
}
