// Package identity holds the enrollment database of face embeddings and the
// nearest-neighbour matcher that resolves probe embeddings against it.
package identity

import (
	"errors"
	"fmt"
)

var (
	ErrNoFaceDetected            = errors.New("no face detected")
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")
	ErrInvalidIdentity           = errors.New("invalid identity")
	ErrMalformedRecord           = errors.New("malformed enrollment record")
)

type Role string

const (
	RolePassenger     Role = "passenger"
	RoleStaffExaminer Role = "staff-examiner"
	RoleSecurity      Role = "security"
)

// ParseRole accepts the canonical role names plus the "tte" alias used by
// older roster exports for travelling ticket examiners.
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RolePassenger):
		return RolePassenger, nil
	case string(RoleStaffExaminer), "tte":
		return RoleStaffExaminer, nil
	case string(RoleSecurity):
		return RoleSecurity, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, s)
	}
}

// Identity is an enrolled person. It is immutable once enrolled; the only
// edit path is Remove followed by a fresh Enroll.
type Identity struct {
	ID              string `json:"identity_id"`
	DisplayName     string `json:"display_name"`
	Authorized      bool   `json:"authorized"`
	Role            Role   `json:"role"`
	TicketReference string `json:"ticket_reference,omitempty"`
}

// Validate checks role membership and that only passengers carry a ticket.
func (i Identity) Validate() error {
	if _, err := ParseRole(string(i.Role)); err != nil {
		return err
	}
	if i.TicketReference != "" && i.Role != RolePassenger {
		return fmt.Errorf("%w: ticket reference only allowed for passengers", ErrInvalidIdentity)
	}
	return nil
}
