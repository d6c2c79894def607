package profiles

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/catalog"
	"github.com/rm-hull/hideaway/internal/config"
	"github.com/rm-hull/hideaway/internal/metrics"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
)

var (
	ErrNoApps = errors.New("no apps selected")
	// ErrNothingAllowed is returned under the allow policy when every
	// essential app is blocked; an empty allow-list would restrict nothing.
	ErrNothingAllowed = errors.New("allow policy leaves no essential apps usable")
)

const (
	KindBlock      = "block"
	KindWeb        = "web"
	KindUnblock    = "unblock"
	KindEnrollment = "enrollment"

	DefaultBlockName = "Focus Mode"
	descriptionApps  = 3
)

type Options struct {
	IdentifierPrefix  string
	Organization      string
	Supervised        bool
	Policy            mobileconfig.AppPolicy
	WebFilter         bool
	RemovalDisallowed bool
}

func OptionsFromConfig(cfg config.ProfilesConfig) Options {
	return Options{
		IdentifierPrefix:  cfg.IdentifierPrefix,
		Organization:      cfg.Organization,
		Supervised:        cfg.Supervised,
		Policy:            mobileconfig.AppPolicy(cfg.Policy),
		WebFilter:         cfg.WebFilter,
		RemovalDisallowed: cfg.RemovalDisallowed,
	}
}

type EnrollmentOptions struct {
	SCEPURL     string
	Challenge   string
	ServerURL   string
	CheckInURL  string
	Topic       string
	SignMessage bool
}

func EnrollmentOptionsFromConfig(cfg config.EnrollmentConfig) EnrollmentOptions {
	return EnrollmentOptions{
		SCEPURL:     cfg.SCEPURL,
		Challenge:   cfg.Challenge,
		ServerURL:   cfg.ServerURL,
		CheckInURL:  cfg.CheckInURL,
		Topic:       cfg.Topic,
		SignMessage: cfg.SignMessage,
	}
}

// Composer turns catalog selections into assembled profiles. It is safe for
// concurrent use.
type Composer struct {
	catalog    *catalog.Source
	opts       Options
	builder    mobileconfig.Builder
	profiles   *metrics.ProfileMetrics
	validation *metrics.ValidationMetrics
	logger     *slog.Logger
}

func NewComposer(cat *catalog.Catalog, opts Options, logger *slog.Logger) (*Composer, error) {
	return NewComposerWithSource(catalog.Static(cat), opts, logger)
}

// NewComposerWithSource builds profiles from whatever catalog source holds
// at the time, so a reloaded catalog is picked up without a restart.
func NewComposerWithSource(source *catalog.Source, opts Options, logger *slog.Logger) (*Composer, error) {
	if opts.Policy == "" {
		opts.Policy = mobileconfig.DenyPolicy
	}
	if opts.Policy != mobileconfig.DenyPolicy && opts.Policy != mobileconfig.AllowPolicy {
		return nil, errors.Newf("unknown app policy %q", opts.Policy)
	}

	profileMetrics, err := metrics.NewProfileMetrics()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize")
	}
	validationMetrics, err := metrics.NewValidationMetrics()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize")
	}

	builder := mobileconfig.NewBuilder(opts.IdentifierPrefix)
	builder.Supervised = opts.Supervised

	return &Composer{
		catalog:    source,
		opts:       opts,
		builder:    builder,
		profiles:   profileMetrics,
		validation: validationMetrics,
		logger:     logger.With(slog.String("source", "profiles")),
	}, nil
}

func (c *Composer) Catalog() *catalog.Catalog {
	return c.catalog.Current()
}

func (c *Composer) Options() Options {
	return c.opts
}

// WithWebFilter returns a copy of the composer with the web filter switched
// on or off.
func (c *Composer) WithWebFilter(enabled bool) *Composer {
	clone := *c
	clone.opts.WebFilter = enabled
	return &clone
}

func (c *Composer) metadata(name, description string) mobileconfig.Metadata {
	return mobileconfig.Metadata{
		IdentifierPrefix:  c.builder.IdentifierPrefix,
		DisplayName:       name,
		Description:       description,
		Organization:      c.opts.Organization,
		RemovalDisallowed: c.opts.RemovalDisallowed,
		Scope:             mobileconfig.SystemScope,
	}
}

// Identifier is the profile identifier a block profile called name gets,
// which is what RemoveProfile needs to undo it.
func (c *Composer) Identifier(name string) string {
	if name == "" {
		name = DefaultBlockName
	}
	return c.metadata(name, "").ResolvedIdentifier()
}

// Describe renders "Blocks apps: A, B, C..." for the first few bundle ids,
// using the catalog's display names where known.
func (c *Composer) Describe(bundleIDs []string) string {
	names := make([]string, 0, descriptionApps)
	for _, bundleID := range bundleIDs[:min(len(bundleIDs), descriptionApps)] {
		if name, ok := c.Catalog().AppName(bundleID); ok {
			names = append(names, name)
		} else {
			names = append(names, bundleID)
		}
	}

	description := "Blocks apps: " + strings.Join(names, ", ")
	if len(bundleIDs) > descriptionApps {
		description += "..."
	}
	return description
}

// Block builds a profile restricting bundleIDs. Under the deny policy the
// apps are deny-listed; under the allow policy only the catalog's essential
// apps (minus any of bundleIDs) remain usable. When the web filter is on the
// related websites are denied too.
func (c *Composer) Block(name string, bundleIDs []string) (*mobileconfig.Profile, error) {
	bundleIDs = unique(bundleIDs)
	if len(bundleIDs) == 0 {
		return nil, ErrNoApps
	}
	if name == "" {
		name = DefaultBlockName
	}

	cat := c.Catalog()
	var payloads []mobileconfig.Payload
	switch c.opts.Policy {
	case mobileconfig.AllowPolicy:
		allowed := slices.DeleteFunc(cat.EssentialApps(), func(bundleID string) bool {
			return slices.Contains(bundleIDs, bundleID)
		})
		if len(allowed) == 0 {
			return nil, ErrNothingAllowed
		}
		payloads = append(payloads, c.builder.AllowApps(allowed))
	default:
		payloads = append(payloads, c.builder.BlockApps(bundleIDs))
	}

	if c.opts.WebFilter {
		if domains := cat.DomainsFor(bundleIDs); len(domains) > 0 {
			payloads = append(payloads, c.builder.WebContentFilter(catalog.WithApexDomains(domains)))
		}
	}

	profile, err := mobileconfig.Assemble(c.metadata(name, c.Describe(bundleIDs)), payloads...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to assemble %q", name)
	}
	c.observe(KindBlock, profile, bundleIDs)
	return profile, nil
}

// BlockNamed resolves app names (or bundle ids) through the catalog first.
func (c *Composer) BlockNamed(name string, apps []string) (*mobileconfig.Profile, error) {
	bundleIDs, err := c.Catalog().ResolveBundleIDs(apps)
	if err != nil {
		return nil, err
	}
	return c.Block(name, bundleIDs)
}

// Preset builds the block profile of a named focus mode.
func (c *Composer) Preset(name string) (*mobileconfig.Profile, error) {
	cat := c.Catalog()
	bundleIDs, err := cat.Preset(name)
	if err != nil {
		return nil, err
	}
	for _, preset := range cat.Presets() {
		if strings.EqualFold(preset.Name, name) {
			name = preset.Name
			break
		}
	}
	return c.Block(name, bundleIDs)
}

// Compose builds a block profile from a preset, extra apps, or both. The
// profile is named after the preset unless name is given.
func (c *Composer) Compose(name, preset string, apps []string) (*mobileconfig.Profile, error) {
	if preset == "" {
		return c.BlockNamed(name, apps)
	}
	if len(apps) == 0 && (name == "" || strings.EqualFold(name, preset)) {
		return c.Preset(preset)
	}

	presetApps, err := c.Catalog().Preset(preset)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = preset
	}
	return c.BlockNamed(name, append(presetApps, apps...))
}

// WebBlock builds a profile holding only a web content filter.
func (c *Composer) WebBlock(name string, domains []string) (*mobileconfig.Profile, error) {
	if len(domains) == 0 {
		return nil, errors.New("no websites selected")
	}
	if name == "" {
		name = "Website Block"
	}

	description := "Blocks websites: " + strings.Join(domains[:min(len(domains), descriptionApps)], ", ")
	if len(domains) > descriptionApps {
		description += "..."
	}

	profile, err := mobileconfig.Assemble(c.metadata(name, description),
		c.builder.WebContentFilter(catalog.WithApexDomains(domains)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to assemble %q", name)
	}
	c.observe(KindWeb, profile, nil)
	return profile, nil
}

// Unblock builds the removal profile: no payloads, always removable.
func (c *Composer) Unblock() (*mobileconfig.Profile, error) {
	meta := c.metadata("Remove Restrictions", "Removes app blocking restrictions")
	meta.Identifier = c.builder.IdentifierPrefix + ".remove"
	meta.RemovalDisallowed = false
	meta.Scope = ""

	profile, err := mobileconfig.Assemble(meta)
	if err != nil {
		return nil, err
	}
	c.observe(KindUnblock, profile, nil)
	return profile, nil
}

// Enrollment builds the SCEP + MDM profile a device installs to join the
// MDM server.
func (c *Composer) Enrollment(device string, opts EnrollmentOptions) (*mobileconfig.Profile, error) {
	if device == "" {
		device = "iPhone"
	}

	scep := c.builder.SCEP(mobileconfig.SCEPOptions{
		URL:       opts.SCEPURL,
		Name:      c.opts.Organization + " CA",
		Challenge: opts.Challenge,
		Subject:   mobileconfig.SubjectName("O", c.opts.Organization, "CN", device),
	})
	mdm := c.builder.MDM(mobileconfig.MDMOptions{
		ServerURL:               opts.ServerURL,
		CheckInURL:              opts.CheckInURL,
		Topic:                   opts.Topic,
		IdentityCertificateUUID: scep.PayloadUUID,
		CheckOutWhenRemoved:     true,
		SignMessage:             opts.SignMessage,
	})

	meta := c.metadata("Hideaway Enrollment - "+device, "Enrolls "+device+" with the Hideaway MDM server")
	meta.Identifier = c.builder.IdentifierPrefix + ".enrollment"
	meta.RemovalDisallowed = false

	profile, err := mobileconfig.Assemble(meta, scep, mdm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble enrollment profile")
	}
	c.observe(KindEnrollment, profile, nil)
	return profile, nil
}

// Validate checks an assembled profile and records the outcome.
func (c *Composer) Validate(profile *mobileconfig.Profile) (*mobileconfig.ValidationReport, error) {
	report, err := mobileconfig.ValidateProfile(profile)
	if err != nil {
		return nil, err
	}
	c.ObserveReport(report)
	return report, nil
}

func (c *Composer) ObserveReport(report *mobileconfig.ValidationReport) {
	kinds := make([]string, len(report.Issues))
	for i, issue := range report.Issues {
		kinds[i] = string(issue.Kind)
	}
	c.validation.Observe(report.IsValid, kinds)
}

func (c *Composer) observe(kind string, profile *mobileconfig.Profile, bundleIDs []string) {
	c.profiles.Observe(kind, len(profile.PayloadContent), bundleIDs)
	c.logger.Debug("Profile assembled",
		"kind", kind,
		"identifier", profile.PayloadIdentifier,
		"uuid", profile.PayloadUUID,
		"payloads", len(profile.PayloadContent))
}

func unique(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != "" && !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}
