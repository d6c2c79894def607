package mobileconfig

import (
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultIdentifierPrefix = "com.hideaway"

	DefaultKeyType  = "RSA"
	DefaultKeysize  = 2048
	DefaultKeyUsage = 5 // digital signature | key encipherment

	AllAccessRights = 8191

	PerUserConnectionsCapability = "com.apple.mdm.per-user-connections"
	BuiltInFilterType            = "BuiltIn"
)

// NewUUID returns a fresh, upper-cased v4 UUID as Apple tooling writes them.
func NewUUID() string {
	return strings.ToUpper(uuid.NewString())
}

// Builder constructs payloads. It holds no state beyond its settings, so a
// single value can be shared by any number of goroutines.
type Builder struct {
	IdentifierPrefix string

	// Supervised adds the install/remove and Game Center switches to
	// application-access payloads. They only take effect on supervised devices.
	Supervised bool
}

func NewBuilder(prefix string) Builder {
	if prefix == "" {
		prefix = DefaultIdentifierPrefix
	}
	return Builder{IdentifierPrefix: prefix}
}

func (b Builder) identifier(suffix string) string {
	prefix := b.IdentifierPrefix
	if prefix == "" {
		prefix = DefaultIdentifierPrefix
	}
	return prefix + "." + suffix
}

func (b Builder) common(payloadType, suffix, displayName, description string) PayloadCommon {
	return PayloadCommon{
		PayloadDisplayName: displayName,
		PayloadDescription: description,
		PayloadIdentifier:  b.identifier(suffix),
		PayloadType:        payloadType,
		PayloadUUID:        NewUUID(),
		PayloadVersion:     PayloadVersion,
	}
}

type SCEPOptions struct {
	URL       string
	Name      string
	Challenge string
	KeyType   string
	Keysize   int
	KeyUsage  int
	Subject   [][][]string
}

// SubjectName builds an X.500 RDN sequence from attribute/value pairs,
// e.g. SubjectName("CN", "Device", "O", "Hideaway").
func SubjectName(attrs ...string) [][][]string {
	subject := make([][][]string, 0, len(attrs)/2)
	for i := 0; i+1 < len(attrs); i += 2 {
		subject = append(subject, [][]string{{attrs[i], attrs[i+1]}})
	}
	return subject
}

func (b Builder) SCEP(opts SCEPOptions) *SCEPPayload {
	content := SCEPContent{
		URL:       opts.URL,
		Name:      opts.Name,
		Challenge: opts.Challenge,
		KeyType:   opts.KeyType,
		Keysize:   opts.Keysize,
		KeyUsage:  opts.KeyUsage,
	}
	if content.KeyType == "" {
		content.KeyType = DefaultKeyType
	}
	if content.Keysize == 0 {
		content.Keysize = DefaultKeysize
	}
	if content.KeyUsage == 0 {
		content.KeyUsage = DefaultKeyUsage
	}
	if len(opts.Subject) > 0 {
		content.Subject = make([][][]string, len(opts.Subject))
		for i, rdn := range opts.Subject {
			content.Subject[i] = make([][]string, len(rdn))
			for j, pair := range rdn {
				content.Subject[i][j] = append([]string(nil), pair...)
			}
		}
	}

	return &SCEPPayload{
		PayloadCommon:  b.common(SCEPPayloadType, "scep", "Device Certificate", "Configures device certificate via SCEP"),
		PayloadContent: content,
	}
}

type MDMOptions struct {
	ServerURL               string
	CheckInURL              string
	Topic                   string
	IdentityCertificateUUID string
	AccessRights            int
	ServerCapabilities      []string
	CheckOutWhenRemoved     bool
	SignMessage             bool
	UseDevelopmentAPNS      bool
}

func (b Builder) MDM(opts MDMOptions) *MDMPayload {
	accessRights := opts.AccessRights
	if accessRights == 0 {
		accessRights = AllAccessRights
	}
	capabilities := []string{PerUserConnectionsCapability}
	if len(opts.ServerCapabilities) > 0 {
		capabilities = append([]string(nil), opts.ServerCapabilities...)
	}

	return &MDMPayload{
		PayloadCommon:           b.common(MDMPayloadType, "mdm", "Mobile Device Management", "Configures Mobile Device Management"),
		AccessRights:            accessRights,
		CheckInURL:              opts.CheckInURL,
		CheckOutWhenRemoved:     opts.CheckOutWhenRemoved,
		IdentityCertificateUUID: opts.IdentityCertificateUUID,
		ServerCapabilities:      capabilities,
		ServerURL:               opts.ServerURL,
		SignMessage:             opts.SignMessage,
		Topic:                   opts.Topic,
		UseDevelopmentAPNS:      opts.UseDevelopmentAPNS,
	}
}

// BlockApps builds a deny-list application-access payload. An empty list
// yields a payload that restricts nothing.
func (b Builder) BlockApps(bundleIDs []string) *AppAccessPayload {
	payload := &AppAccessPayload{
		PayloadCommon:           b.common(AppAccessPayloadType, "apprestrictions", "App Restrictions", "Prevents access to specified applications"),
		BlacklistedAppBundleIDs: copyList(bundleIDs),
	}
	b.applySupervised(payload)
	return payload
}

// AllowApps builds an allow-list application-access payload: only the listed
// apps may run. Mutually exclusive with BlockApps in a single payload. An
// empty list carries neither list, so like BlockApps(nil) it restricts
// nothing and its Policy is DenyPolicy.
func (b Builder) AllowApps(bundleIDs []string) *AppAccessPayload {
	payload := &AppAccessPayload{
		PayloadCommon:           b.common(AppAccessPayloadType, "apprestrictions", "App Restrictions", "Allows only the specified applications"),
		WhitelistedAppBundleIDs: copyList(bundleIDs),
	}
	b.applySupervised(payload)
	return payload
}

func (b Builder) applySupervised(payload *AppAccessPayload) {
	if !b.Supervised {
		return
	}
	payload.AllowAppInstallation = boolPtr(false)
	payload.AllowAppRemoval = boolPtr(false)
	payload.AllowUIAppInstallation = boolPtr(false)
	payload.AllowMultiplayer = boolPtr(false)
	payload.AllowAddingGameCenterFriends = boolPtr(false)
}

func (b Builder) WebContentFilter(domains []string) *WebContentFilterPayload {
	return &WebContentFilterPayload{
		PayloadCommon:     b.common(WebContentFilterPayloadType, "webfilter", "Web Content Filter", "Blocks specified websites"),
		FilterType:        BuiltInFilterType,
		AutoFilterEnabled: true,
		FilterBrowsers:    true,
		FilterSockets:     true,
		DenyListURLs:      copyList(domains),
	}
}

// copyList returns nil for an empty list so that the payload encodes and
// decodes to the same value.
func copyList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	return append([]string(nil), items...)
}

func boolPtr(b bool) *bool {
	return &b
}
