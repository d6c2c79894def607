package mobileconfig

const (
	ConfigurationType = "Configuration"
	PayloadVersion    = 1

	SCEPPayloadType             = "com.apple.security.scep"
	MDMPayloadType              = "com.apple.mdm"
	AppAccessPayloadType        = "com.apple.applicationaccess"
	WebContentFilterPayloadType = "com.apple.webcontent-filter"
)

// KnownPayloadTypes lists the payload types this package models as typed variants.
var KnownPayloadTypes = []string{
	SCEPPayloadType,
	MDMPayloadType,
	AppAccessPayloadType,
	WebContentFilterPayloadType,
}

func IsKnownPayloadType(payloadType string) bool {
	for _, t := range KnownPayloadTypes {
		if t == payloadType {
			return true
		}
	}
	return false
}

// Profile is the root of a .mobileconfig document.
type Profile struct {
	PayloadContent           []Payload `plist:"PayloadContent"`
	PayloadDescription       string    `plist:"PayloadDescription,omitempty"`
	PayloadDisplayName       string    `plist:"PayloadDisplayName"`
	PayloadIdentifier        string    `plist:"PayloadIdentifier"`
	PayloadOrganization      string    `plist:"PayloadOrganization,omitempty"`
	PayloadRemovalDisallowed bool      `plist:"PayloadRemovalDisallowed"`
	PayloadScope             string    `plist:"PayloadScope,omitempty"`
	PayloadType              string    `plist:"PayloadType"`
	PayloadUUID              string    `plist:"PayloadUUID"`
	PayloadVersion           int       `plist:"PayloadVersion"`
}

// Payload is one typed settings block inside a Profile.
type Payload interface {
	Common() PayloadCommon
	plistValue() any
}

// PayloadCommon holds the keys every payload carries.
type PayloadCommon struct {
	PayloadDisplayName string `plist:"PayloadDisplayName"`
	PayloadDescription string `plist:"PayloadDescription,omitempty"`
	PayloadIdentifier  string `plist:"PayloadIdentifier"`
	PayloadType        string `plist:"PayloadType"`
	PayloadUUID        string `plist:"PayloadUUID"`
	PayloadVersion     int    `plist:"PayloadVersion"`
}

type SCEPPayload struct {
	PayloadCommon
	PayloadContent SCEPContent `plist:"PayloadContent"`
}

type SCEPContent struct {
	URL       string       `plist:"URL"`
	Name      string       `plist:"Name,omitempty"`
	Challenge string       `plist:"Challenge,omitempty"`
	KeyType   string       `plist:"Key Type"`
	Keysize   int          `plist:"Keysize"`
	KeyUsage  int          `plist:"Key Usage"`
	Subject   [][][]string `plist:"Subject,omitempty"`
}

type MDMPayload struct {
	PayloadCommon
	AccessRights            int      `plist:"AccessRights"`
	CheckInURL              string   `plist:"CheckInURL,omitempty"`
	CheckOutWhenRemoved     bool     `plist:"CheckOutWhenRemoved"`
	IdentityCertificateUUID string   `plist:"IdentityCertificateUUID"`
	ServerCapabilities      []string `plist:"ServerCapabilities,omitempty"`
	ServerURL               string   `plist:"ServerURL"`
	SignMessage             bool     `plist:"SignMessage"`
	Topic                   string   `plist:"Topic"`
	UseDevelopmentAPNS      bool     `plist:"UseDevelopmentAPNS"`
}

// AppAccessPayload restricts applications either by deny-list or by
// allow-list; at most one of the two lists is set.
type AppAccessPayload struct {
	PayloadCommon
	BlacklistedAppBundleIDs      []string `plist:"blacklistedAppBundleIDs,omitempty"`
	WhitelistedAppBundleIDs      []string `plist:"whitelistedAppBundleIDs,omitempty"`
	AllowAppInstallation         *bool    `plist:"allowAppInstallation,omitempty"`
	AllowAppRemoval              *bool    `plist:"allowAppRemoval,omitempty"`
	AllowUIAppInstallation       *bool    `plist:"allowUIAppInstallation,omitempty"`
	AllowMultiplayer             *bool    `plist:"allowMultiplayer,omitempty"`
	AllowAddingGameCenterFriends *bool    `plist:"allowAddingGameCenterFriends,omitempty"`
}

type AppPolicy string

const (
	DenyPolicy  AppPolicy = "deny"
	AllowPolicy AppPolicy = "allow"
)

// Policy is AllowPolicy when an allow-list is present. A payload with
// neither list restricts nothing and reports DenyPolicy.
func (p *AppAccessPayload) Policy() AppPolicy {
	if p.WhitelistedAppBundleIDs != nil {
		return AllowPolicy
	}
	return DenyPolicy
}

type WebContentFilterPayload struct {
	PayloadCommon
	FilterType        string   `plist:"FilterType"`
	AutoFilterEnabled bool     `plist:"AutoFilterEnabled"`
	FilterBrowsers    bool     `plist:"FilterBrowsers"`
	FilterSockets     bool     `plist:"FilterSockets"`
	DenyListURLs      []string `plist:"DenyListURLs,omitempty"`
}

// UnknownPayload carries a payload of a type not modelled above, verbatim.
type UnknownPayload struct {
	Raw map[string]any
}

func (p *SCEPPayload) Common() PayloadCommon             { return p.PayloadCommon }
func (p *MDMPayload) Common() PayloadCommon              { return p.PayloadCommon }
func (p *AppAccessPayload) Common() PayloadCommon        { return p.PayloadCommon }
func (p *WebContentFilterPayload) Common() PayloadCommon { return p.PayloadCommon }

func (p *UnknownPayload) Common() PayloadCommon {
	str := func(key string) string {
		s, _ := p.Raw[key].(string)
		return s
	}
	version, _ := asInt(p.Raw["PayloadVersion"])
	return PayloadCommon{
		PayloadDisplayName: str("PayloadDisplayName"),
		PayloadDescription: str("PayloadDescription"),
		PayloadIdentifier:  str("PayloadIdentifier"),
		PayloadType:        str("PayloadType"),
		PayloadUUID:        str("PayloadUUID"),
		PayloadVersion:     version,
	}
}

// plistValue returns what the encoder should see for this payload. Values,
// not pointers, since the plist encoder only descends one level of
// interface indirection.
func (p *SCEPPayload) plistValue() any             { return *p }
func (p *MDMPayload) plistValue() any              { return *p }
func (p *AppAccessPayload) plistValue() any        { return *p }
func (p *WebContentFilterPayload) plistValue() any { return *p }
func (p *UnknownPayload) plistValue() any          { return p.Raw }

// asInt accepts the integer kinds the plist decoder may produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
