package mobileconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"howett.net/plist"
)

const (
	FileExtension = ".mobileconfig"
	ContentType   = "application/x-apple-aspen-config"
)

// profilePlist is the wire shape of a Profile. PayloadContent holds plain
// values so the encoder never meets the Payload interface.
type profilePlist struct {
	PayloadContent           []any  `plist:"PayloadContent"`
	PayloadDescription       string `plist:"PayloadDescription,omitempty"`
	PayloadDisplayName       string `plist:"PayloadDisplayName"`
	PayloadIdentifier        string `plist:"PayloadIdentifier"`
	PayloadOrganization      string `plist:"PayloadOrganization,omitempty"`
	PayloadRemovalDisallowed bool   `plist:"PayloadRemovalDisallowed"`
	PayloadScope             string `plist:"PayloadScope,omitempty"`
	PayloadType              string `plist:"PayloadType"`
	PayloadUUID              string `plist:"PayloadUUID"`
	PayloadVersion           int    `plist:"PayloadVersion"`
}

func (p Profile) MarshalPlist() (interface{}, error) {
	content := make([]any, 0, len(p.PayloadContent))
	for i, payload := range p.PayloadContent {
		if payload == nil {
			return nil, errors.Newf("payload %d is nil", i)
		}
		content = append(content, payload.plistValue())
	}

	return profilePlist{
		PayloadContent:           content,
		PayloadDescription:       p.PayloadDescription,
		PayloadDisplayName:       p.PayloadDisplayName,
		PayloadIdentifier:        p.PayloadIdentifier,
		PayloadOrganization:      p.PayloadOrganization,
		PayloadRemovalDisallowed: p.PayloadRemovalDisallowed,
		PayloadScope:             p.PayloadScope,
		PayloadType:              p.PayloadType,
		PayloadUUID:              p.PayloadUUID,
		PayloadVersion:           p.PayloadVersion,
	}, nil
}

func (p *Profile) UnmarshalPlist(unmarshal func(interface{}) error) error {
	var raw profilePlist
	if err := unmarshal(&raw); err != nil {
		return err
	}

	content := make([]Payload, 0, len(raw.PayloadContent))
	for i, item := range raw.PayloadContent {
		dict, ok := item.(map[string]any)
		if !ok {
			return errors.Newf("payload %d is not a dictionary", i)
		}
		payload, err := decodePayload(dict)
		if err != nil {
			return errors.Wrapf(err, "failed to decode payload %d", i)
		}
		content = append(content, payload)
	}

	*p = Profile{
		PayloadContent:           content,
		PayloadDescription:       raw.PayloadDescription,
		PayloadDisplayName:       raw.PayloadDisplayName,
		PayloadIdentifier:        raw.PayloadIdentifier,
		PayloadOrganization:      raw.PayloadOrganization,
		PayloadRemovalDisallowed: raw.PayloadRemovalDisallowed,
		PayloadScope:             raw.PayloadScope,
		PayloadType:              raw.PayloadType,
		PayloadUUID:              raw.PayloadUUID,
		PayloadVersion:           raw.PayloadVersion,
	}
	return nil
}

func decodePayload(dict map[string]any) (Payload, error) {
	payloadType, _ := dict["PayloadType"].(string)

	var target Payload
	switch payloadType {
	case SCEPPayloadType:
		target = &SCEPPayload{}
	case MDMPayloadType:
		target = &MDMPayload{}
	case AppAccessPayloadType:
		target = &AppAccessPayload{}
	case WebContentFilterPayloadType:
		target = &WebContentFilterPayload{}
	default:
		return &UnknownPayload{Raw: dict}, nil
	}

	// Re-encode the generic dictionary and decode it into the typed variant;
	// the decoder then performs all type checks for us.
	data, err := plist.Marshal(dict, plist.BinaryFormat)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to re-encode %s payload", payloadType)
	}
	if _, err := plist.Unmarshal(data, target); err != nil {
		return nil, errors.Wrapf(err, "invalid %s payload", payloadType)
	}
	return target, nil
}

// Encode serializes a profile. XML output is indented the same way Apple's
// tools write it.
func Encode(profile *Profile, format int) ([]byte, error) {
	if profile == nil {
		return nil, errors.New("nil profile")
	}

	buf := new(bytes.Buffer)
	enc := plist.NewEncoderForFormat(buf, format)
	if format == plist.XMLFormat {
		enc.Indent("  ")
	}
	if err := enc.Encode(profile); err != nil {
		return nil, errors.Wrap(err, "failed to encode profile")
	}
	return buf.Bytes(), nil
}

func EncodeXML(profile *Profile) ([]byte, error) {
	return Encode(profile, plist.XMLFormat)
}

// Decode parses XML or binary plist data into a typed Profile and reports
// which format the input used.
func Decode(data []byte) (*Profile, int, error) {
	var profile Profile
	format, err := plist.Unmarshal(data, &profile)
	if err != nil {
		return nil, format, errors.Wrap(err, "failed to decode profile")
	}
	return &profile, format, nil
}

// DecodeRaw parses plist data without applying the typed model, which is
// what the validator needs to see missing or malformed keys.
func DecodeRaw(data []byte) (map[string]any, error) {
	var doc map[string]any
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse plist")
	}
	if doc == nil {
		return nil, errors.New("plist root is not a dictionary")
	}
	return doc, nil
}

func ReadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	profile, _, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return profile, nil
}

// WriteFile encodes profile as XML to path, appending the .mobileconfig
// extension when missing. It returns the path actually written.
func WriteFile(path string, profile *Profile) (string, error) {
	if !strings.HasSuffix(path, FileExtension) {
		path += FileExtension
	}

	data, err := EncodeXML(profile)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.Wrapf(err, "failed to create directory %q", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}
