package audit

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	auditmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/audit"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("audit: cbor encoder: %v", err))
	}
	encMode = em
}

// sealed lists exactly the fields covered by an entry's hash. The integer
// keys keep the encoding stable if fields are renamed.
type sealed struct {
	SubjectType string `cbor:"1,keyasint"`
	SubjectID   string `cbor:"2,keyasint"`
	Sequence    int64  `cbor:"3,keyasint"`
	EventType   string `cbor:"4,keyasint"`
	OldStatus   string `cbor:"5,keyasint"`
	NewStatus   string `cbor:"6,keyasint"`
	Actor       string `cbor:"7,keyasint"`
	Description string `cbor:"8,keyasint"`
	OccurredAt  int64  `cbor:"9,keyasint"`
	PrevHash    string `cbor:"10,keyasint"`
}

// Seal computes the chained hash of an entry. OccurredAt is hashed at
// microsecond precision, the resolution PostgreSQL keeps.
func Seal(e *auditmodel.Entry) (string, error) {
	payload, err := encMode.Marshal(sealed{
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Sequence:    e.Sequence,
		EventType:   e.EventType,
		OldStatus:   e.OldStatus,
		NewStatus:   e.NewStatus,
		Actor:       e.Actor,
		Description: e.Description,
		OccurredAt:  e.OccurredAt.UnixMicro(),
		PrevHash:    e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit entry: %w", err)
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain walks entries in sequence order and reports the first entry
// whose link or hash does not match.
func VerifyChain(subjectID string, entries []*auditmodel.Entry) (*Verification, error) {
	v := &Verification{SubjectID: subjectID, Entries: len(entries), Valid: true}

	prev := ""
	for i, e := range entries {
		broken := func(reason string) (*Verification, error) {
			seq := e.Sequence
			v.Valid = false
			v.BrokenAt = &seq
			v.Reason = reason
			return v, nil
		}

		if e.Sequence != int64(i+1) {
			return broken(fmt.Sprintf("expected sequence %d, found %d", i+1, e.Sequence))
		}
		if e.PrevHash != prev {
			return broken("previous hash does not match")
		}
		hash, err := Seal(e)
		if err != nil {
			return nil, err
		}
		if hash != e.Hash {
			return broken("entry hash does not match its contents")
		}
		prev = e.Hash
	}

	return v, nil
}
