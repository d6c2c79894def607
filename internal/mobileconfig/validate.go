package mobileconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

type IssueKind string

const (
	MissingField       IssueKind = "MissingField"
	InvalidFieldValue  IssueKind = "InvalidFieldValue"
	InvalidShape       IssueKind = "InvalidShape"
	UnknownPayloadType IssueKind = "UnknownPayloadType"
	Summary            IssueKind = "Summary"
)

// Fatal reports whether an issue of this kind makes a document invalid.
func (k IssueKind) Fatal() bool {
	switch k {
	case MissingField, InvalidFieldValue, InvalidShape:
		return true
	}
	return false
}

// DocumentScope is the PayloadIndex of issues raised against the profile root.
const DocumentScope = -1

type Issue struct {
	Kind         IssueKind `json:"kind"`
	Field        string    `json:"field,omitempty"`
	PayloadIndex int       `json:"payload_index"`
	Message      string    `json:"message"`

	// Set on Summary issues only.
	BundleIDCount int      `json:"bundle_id_count,omitempty"`
	BundleIDs     []string `json:"bundle_ids,omitempty"`
}

func (i Issue) String() string {
	if i.PayloadIndex == DocumentScope {
		return fmt.Sprintf("%s: %s", i.Kind, i.Message)
	}
	return fmt.Sprintf("%s (payload %d): %s", i.Kind, i.PayloadIndex+1, i.Message)
}

type ValidationReport struct {
	Path    string  `json:"path,omitempty"`
	IsValid bool    `json:"is_valid"`
	Issues  []Issue `json:"issues"`
}

func (r *ValidationReport) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	if issue.Kind.Fatal() {
		r.IsValid = false
	}
}

// Count returns the number of issues of the given kind.
func (r *ValidationReport) Count(kind IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

var (
	RequiredProfileFields = []string{
		"PayloadContent",
		"PayloadDisplayName",
		"PayloadIdentifier",
		"PayloadType",
		"PayloadUUID",
		"PayloadVersion",
	}

	RequiredPayloadFields = []string{
		"PayloadDisplayName",
		"PayloadIdentifier",
		"PayloadType",
		"PayloadUUID",
		"PayloadVersion",
	}
)

const summaryPreviewSize = 3

// Validate checks a parsed document against the profile schema. Every check
// runs; the report holds all issues found in a single pass.
func Validate(doc map[string]any) *ValidationReport {
	report := &ValidationReport{IsValid: true, Issues: []Issue{}}

	for _, field := range RequiredProfileFields {
		if _, ok := doc[field]; !ok {
			report.add(Issue{
				Kind:         MissingField,
				Field:        field,
				PayloadIndex: DocumentScope,
				Message:      field + " is missing",
			})
		}
	}

	if value, ok := doc["PayloadType"]; ok && value != ConfigurationType {
		report.add(Issue{
			Kind:         InvalidFieldValue,
			Field:        "PayloadType",
			PayloadIndex: DocumentScope,
			Message:      fmt.Sprintf("PayloadType should be %q, got: %v", ConfigurationType, value),
		})
	}

	if value, ok := doc["PayloadVersion"]; ok {
		if version, isInt := asInt(value); !isInt || version != PayloadVersion {
			report.add(Issue{
				Kind:         InvalidFieldValue,
				Field:        "PayloadVersion",
				PayloadIndex: DocumentScope,
				Message:      fmt.Sprintf("PayloadVersion should be %d, got: %v", PayloadVersion, value),
			})
		}
	}

	content, present := doc["PayloadContent"]
	if !present {
		return report
	}
	payloads, ok := content.([]any)
	if !ok {
		report.add(Issue{
			Kind:         InvalidShape,
			Field:        "PayloadContent",
			PayloadIndex: DocumentScope,
			Message:      fmt.Sprintf("PayloadContent must be an array, got: %T", content),
		})
		return report
	}

	for i, item := range payloads {
		validatePayload(report, i, item)
	}

	return report
}

func validatePayload(report *ValidationReport, index int, item any) {
	payload, ok := item.(map[string]any)
	if !ok {
		report.add(Issue{
			Kind:         InvalidShape,
			PayloadIndex: index,
			Message:      fmt.Sprintf("payload must be a dictionary, got: %T", item),
		})
		return
	}

	for _, field := range RequiredPayloadFields {
		if _, ok := payload[field]; !ok {
			report.add(Issue{
				Kind:         MissingField,
				Field:        field,
				PayloadIndex: index,
				Message:      field + " is missing",
			})
		}
	}

	raw, present := payload["PayloadType"]
	if !present {
		return
	}
	payloadType, ok := raw.(string)
	if !ok || payloadType == "" {
		report.add(Issue{
			Kind:         InvalidFieldValue,
			Field:        "PayloadType",
			PayloadIndex: index,
			Message:      fmt.Sprintf("PayloadType must be a non-empty string, got: %v (%T)", raw, raw),
		})
		return
	}

	if !IsKnownPayloadType(payloadType) {
		report.add(Issue{
			Kind:         UnknownPayloadType,
			Field:        "PayloadType",
			PayloadIndex: index,
			Message:      "unrecognised payload type: " + payloadType,
		})
		return
	}

	if payloadType == AppAccessPayloadType {
		summarizeAppAccess(report, index, payload)
	}
}

func summarizeAppAccess(report *ValidationReport, index int, payload map[string]any) {
	bundleIDs := stringList(payload["blacklistedAppBundleIDs"])
	verb := "Blocking"
	if allowed, ok := payload["whitelistedAppBundleIDs"]; ok {
		bundleIDs = stringList(allowed)
		verb = "Allowing"
	}

	preview := bundleIDs
	if len(preview) > summaryPreviewSize {
		preview = preview[:summaryPreviewSize]
	}

	message := fmt.Sprintf("%s %d apps", verb, len(bundleIDs))
	if len(preview) > 0 {
		message += ": " + strings.Join(preview, ", ")
		if more := len(bundleIDs) - len(preview); more > 0 {
			message += fmt.Sprintf(" ... and %d more", more)
		}
	}

	report.add(Issue{
		Kind:          Summary,
		PayloadIndex:  index,
		Message:       message,
		BundleIDCount: len(bundleIDs),
		BundleIDs:     append([]string(nil), preview...),
	})
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ValidateProfile validates an assembled profile by encoding it and checking
// the document the device would receive.
func ValidateProfile(profile *Profile) (*ValidationReport, error) {
	data, err := EncodeXML(profile)
	if err != nil {
		return nil, err
	}
	return ValidateBytes(data)
}

func ValidateBytes(data []byte) (*ValidationReport, error) {
	doc, err := DecodeRaw(data)
	if err != nil {
		return nil, err
	}
	return Validate(doc), nil
}

func ValidateFile(path string) (*ValidationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	report, err := ValidateBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	report.Path = path
	return report, nil
}

// ValidateDir validates every .mobileconfig file in dir independently, in
// name order. A file that cannot be parsed yields an invalid report carrying
// an InvalidShape issue rather than aborting the run.
func ValidateDir(dir string) ([]*ValidationReport, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+FileExtension))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}
	sort.Strings(files)

	reports := make([]*ValidationReport, 0, len(files))
	for _, file := range files {
		report, err := ValidateFile(file)
		if err != nil {
			report = &ValidationReport{Path: file, IsValid: false, Issues: []Issue{{
				Kind:         InvalidShape,
				PayloadIndex: DocumentScope,
				Message:      err.Error(),
			}}}
		}
		reports = append(reports, report)
	}
	return reports, nil
}
