package mobileconfig

import (
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	SystemScope = "System"
	UserScope   = "User"
)

// Metadata describes the profile wrapper; the payloads are passed separately.
type Metadata struct {
	// Identifier overrides the identifier derived from DisplayName.
	Identifier        string
	IdentifierPrefix  string
	DisplayName       string
	Description       string
	Organization      string
	RemovalDisallowed bool
	Scope             string
}

// NormalizeName lower-cases a profile name and strips spaces and hyphens,
// e.g. "Study Mode" -> "studymode".
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer(" ", "", "-", "").Replace(name)
}

// ResolvedIdentifier is the profile identifier Assemble will use.
func (m Metadata) ResolvedIdentifier() string {
	if m.Identifier != "" {
		return m.Identifier
	}
	prefix := m.IdentifierPrefix
	if prefix == "" {
		prefix = DefaultIdentifierPrefix
	}
	return prefix + "." + NormalizeName(m.DisplayName)
}

// Assemble wraps payloads into a new Profile with a freshly generated UUID.
// Payload order is preserved. An empty payload list produces a removal
// profile.
func Assemble(meta Metadata, payloads ...Payload) (*Profile, error) {
	identifiers := make(map[string]struct{}, len(payloads))
	uuids := make(map[string]struct{}, len(payloads))
	certificates := make(map[string]struct{})

	for _, p := range payloads {
		if p == nil {
			return nil, errors.New("nil payload")
		}
		common := p.Common()
		if _, seen := identifiers[common.PayloadIdentifier]; seen {
			return nil, &DuplicateIdentifierError{Identifier: common.PayloadIdentifier}
		}
		identifiers[common.PayloadIdentifier] = struct{}{}

		if _, seen := uuids[common.PayloadUUID]; seen {
			return nil, &DuplicateUUIDError{UUID: common.PayloadUUID}
		}
		uuids[common.PayloadUUID] = struct{}{}

		if _, ok := p.(*SCEPPayload); ok {
			certificates[common.PayloadUUID] = struct{}{}
		}
	}

	for _, p := range payloads {
		mdm, ok := p.(*MDMPayload)
		if !ok {
			continue
		}
		if _, found := certificates[mdm.IdentityCertificateUUID]; !found {
			return nil, &DanglingReferenceError{
				PayloadIdentifier: mdm.PayloadIdentifier,
				CertificateUUID:   mdm.IdentityCertificateUUID,
			}
		}
	}

	profileUUID := NewUUID()
	for {
		if _, clash := uuids[profileUUID]; !clash {
			break
		}
		profileUUID = NewUUID()
	}

	return &Profile{
		PayloadContent:           append(make([]Payload, 0, len(payloads)), payloads...),
		PayloadDescription:       meta.Description,
		PayloadDisplayName:       meta.DisplayName,
		PayloadIdentifier:        meta.ResolvedIdentifier(),
		PayloadOrganization:      meta.Organization,
		PayloadRemovalDisallowed: meta.RemovalDisallowed,
		PayloadScope:             meta.Scope,
		PayloadType:              ConfigurationType,
		PayloadUUID:              profileUUID,
		PayloadVersion:           PayloadVersion,
	}, nil
}

func (p *Profile) PayloadsOfType(payloadType string) []Payload {
	var matched []Payload
	for _, payload := range p.PayloadContent {
		if payload.Common().PayloadType == payloadType {
			matched = append(matched, payload)
		}
	}
	return matched
}

func (p *Profile) IsRemoval() bool {
	return len(p.PayloadContent) == 0
}
