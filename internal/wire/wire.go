// Package wire implements the self-describing datagram codec shared by every
// peer. A GossipPacket is a discriminated union: exactly one of its fields is
// populated, and Decode uses that to tell a rumor from a status without any
// separate type byte on the wire.
package wire

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dedis/protobuf"
)

// ErrMalformed is returned by Decode when a datagram decodes cleanly but
// carries neither a well-formed rumor nor a well-formed status.
var ErrMalformed = errors.New("wire: malformed datagram")

// RumorMessage is a single chat message from one origin.
type RumorMessage struct {
	Origin   string
	SeqNo    uint32
	ChatText string
}

// PeerStatus is one entry of a status vector: the next sequence number the
// sender has not yet seen from Origin.
type PeerStatus struct {
	Origin  string
	NextSeq uint32
}

// StatusPacket is a peer's summary of what it has seen from every origin it
// knows about.
type StatusPacket struct {
	Want []PeerStatus
}

// GossipPacket is the envelope placed on the wire. Only one of Rumor or
// Status is non-nil for any given packet; dedis/protobuf omits nil pointer
// fields entirely, which is what makes the encoding self-describing.
type GossipPacket struct {
	Rumor  *RumorMessage
	Status *StatusPacket
}

// Encode serializes a GossipPacket to its wire representation.
func Encode(pkt *GossipPacket) ([]byte, error) {
	b, err := protobuf.Encode(pkt)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return b, nil
}

// Decode parses a datagram and validates it against the two known shapes.
// A datagram that decodes but satisfies neither shape is reported as
// ErrMalformed so the caller can drop it and bump a counter rather than
// retrying.
func Decode(data []byte) (*GossipPacket, error) {
	var pkt GossipPacket
	if err := protobuf.Decode(data, &pkt); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}

	switch {
	case pkt.Status != nil:
		return &pkt, nil
	case pkt.Rumor != nil:
		if pkt.Rumor.Origin == "" || pkt.Rumor.SeqNo < 1 {
			return nil, ErrMalformed
		}
		return &pkt, nil
	default:
		return nil, ErrMalformed
	}
}

// StatusFromVector builds a StatusPacket from a plain origin->next-sequence
// map, sorting entries by origin so the wire encoding is deterministic.
func StatusFromVector(vec map[string]uint32) *StatusPacket {
	sp := &StatusPacket{Want: make([]PeerStatus, 0, len(vec))}
	for _, o := range sortedOrigins(vec) {
		sp.Want = append(sp.Want, PeerStatus{Origin: o, NextSeq: vec[o]})
	}
	return sp
}

// Vector converts a StatusPacket back into an origin->next-sequence map.
func (sp *StatusPacket) Vector() map[string]uint32 {
	vec := make(map[string]uint32, len(sp.Want))
	for _, ps := range sp.Want {
		vec[ps.Origin] = ps.NextSeq
	}
	return vec
}

func sortedOrigins(vec map[string]uint32) []string {
	origins := make([]string, 0, len(vec))
	for o := range vec {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	return origins
}
