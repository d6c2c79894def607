package mobileconfig

import "fmt"

// DanglingReferenceError is returned when an MDM payload names an identity
// certificate that no SCEP payload in the same profile provides.
type DanglingReferenceError struct {
	PayloadIdentifier string
	CertificateUUID   string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("payload %q references identity certificate %q which is not in the profile",
		e.PayloadIdentifier, e.CertificateUUID)
}

type DuplicateIdentifierError struct {
	Identifier string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("payload identifier %q is used more than once", e.Identifier)
}

type DuplicateUUIDError struct {
	UUID string
}

func (e *DuplicateUUIDError) Error() string {
	return fmt.Sprintf("payload UUID %q is used more than once", e.UUID)
}
