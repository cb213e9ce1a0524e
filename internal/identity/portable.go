package identity

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Record is the portable form of one embedding plus its owner's metadata.
// EmbeddingEncoding is standard base64 of the little-endian float32 vector.
type Record struct {
	IdentityID        string `json:"identity_id"`
	DisplayName       string `json:"display_name"`
	Authorized        bool   `json:"authorized"`
	Role              string `json:"role"`
	TicketReference   string `json:"ticket_reference,omitempty"`
	EmbeddingEncoding string `json:"embedding_encoding"`
}

// EncodeVector packs v as little-endian float32 and base64-encodes it.
func EncodeVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrMalformedRecord, err)
	}
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding blob length %d", ErrMalformedRecord, len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// ToSample decodes the record into its metadata and vector.
func (r Record) ToSample() (Sample, error) {
	if r.IdentityID == "" {
		return Sample{}, fmt.Errorf("%w: missing identity_id", ErrMalformedRecord)
	}
	role, err := ParseRole(r.Role)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	vec, err := DecodeVector(r.EmbeddingEncoding)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Identity: Identity{
			ID:              r.IdentityID,
			DisplayName:     r.DisplayName,
			Authorized:      r.Authorized,
			Role:            role,
			TicketReference: r.TicketReference,
		},
		Vector: vec,
	}, nil
}

// Export returns one record per embedding in scan order.
func (s *Store) Export() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, s.embeddings)
	for _, id := range s.order {
		e := s.byID[id]
		for _, v := range e.vectors {
			out = append(out, Record{
				IdentityID:        e.identity.ID,
				DisplayName:       e.identity.DisplayName,
				Authorized:        e.identity.Authorized,
				Role:              string(e.identity.Role),
				TicketReference:   e.identity.TicketReference,
				EmbeddingEncoding: EncodeVector(v),
			})
		}
	}
	return out
}

// ImportResult tallies an import batch.
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Samples  []Sample `json:"-"`
}

// Import enrolls every well-formed record. Malformed records are skipped and
// counted; they never abort the batch. The accepted samples are returned so
// callers can persist exactly what was imported.
func (s *Store) Import(records []Record) ImportResult {
	var res ImportResult
	for _, r := range records {
		smp, err := r.ToSample()
		if err != nil {
			res.Failed++
			continue
		}
		id, err := s.Enroll(smp.Identity, smp.Vector)
		if err != nil {
			res.Failed++
			continue
		}
		smp.Identity.ID = id
		res.Imported++
		res.Samples = append(res.Samples, smp)
	}
	return res
}
