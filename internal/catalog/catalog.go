package catalog

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownApp    = errors.New("unknown app")
	ErrUnknownPreset = errors.New("unknown preset")
	ErrDuplicateApp  = errors.New("duplicate app name")
)

type App struct {
	Name     string   `json:"name" yaml:"name"`
	BundleID string   `json:"bundle_id" yaml:"bundle_id"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Domains  []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// Preset is a named focus mode: the apps (by display name) it blocks.
type Preset struct {
	Name string   `json:"name" yaml:"name"`
	Apps []string `json:"apps" yaml:"apps"`
}

// Catalog maps app names to bundle identifiers and bundle identifiers to the
// web domains serving the same content. It is never modified after
// construction, so a single instance can be shared between goroutines.
type Catalog struct {
	apps      []App
	byName    map[string]int
	byBundle  map[string]int
	domains   map[string][]string
	presets   []Preset
	essential []string
}

func newCatalog(apps []App, presets []Preset, essential []string) (*Catalog, error) {
	c := &Catalog{
		apps:      make([]App, 0, len(apps)),
		byName:    make(map[string]int, len(apps)),
		byBundle:  make(map[string]int, len(apps)),
		domains:   make(map[string][]string),
		essential: slices.Clone(essential),
	}

	for _, app := range apps {
		if app.Name == "" || app.BundleID == "" {
			return nil, errors.Newf("app entry requires both name and bundle id: %+v", app)
		}
		if _, exists := c.byName[app.Name]; exists {
			return nil, errors.Wrapf(ErrDuplicateApp, "%q", app.Name)
		}
		c.byName[app.Name] = len(c.apps)
		c.apps = append(c.apps, app)
	}

	for i, app := range c.apps {
		if _, exists := c.byBundle[app.BundleID]; !exists {
			c.byBundle[app.BundleID] = i
		}
		if len(app.Domains) > 0 {
			c.domains[app.BundleID] = dedupe(append(c.domains[app.BundleID], app.Domains...))
		}
	}

	for _, preset := range presets {
		for _, name := range preset.Apps {
			if _, err := c.ResolveBundleID(name); err != nil {
				return nil, errors.Wrapf(err, "preset %q", preset.Name)
			}
		}
		c.presets = append(c.presets, Preset{Name: preset.Name, Apps: slices.Clone(preset.Apps)})
	}

	return c, nil
}

// ResolveBundleID looks up an app by its exact display name. A bundle
// identifier already present in the catalog resolves to itself.
func (c *Catalog) ResolveBundleID(name string) (string, error) {
	if idx, ok := c.byName[name]; ok {
		return c.apps[idx].BundleID, nil
	}
	if _, ok := c.byBundle[name]; ok {
		return name, nil
	}
	return "", errors.Wrapf(ErrUnknownApp, "%q", name)
}

// ResolveBundleIDs resolves every name, keeping order and dropping repeats.
func (c *Catalog) ResolveBundleIDs(names []string) ([]string, error) {
	bundleIDs := make([]string, 0, len(names))
	for _, name := range names {
		bundleID, err := c.ResolveBundleID(name)
		if err != nil {
			return nil, err
		}
		bundleIDs = append(bundleIDs, bundleID)
	}
	return dedupe(bundleIDs), nil
}

// AppName is the reverse lookup. When two names share a bundle identifier
// the first in catalog order wins.
func (c *Catalog) AppName(bundleID string) (string, bool) {
	idx, ok := c.byBundle[bundleID]
	if !ok {
		return "", false
	}
	return c.apps[idx].Name, true
}

func (c *Catalog) RelatedDomains(bundleID string) []string {
	return slices.Clone(c.domains[bundleID])
}

// DomainsFor is the ordered union of the related domains of every bundle.
func (c *Catalog) DomainsFor(bundleIDs []string) []string {
	var domains []string
	for _, bundleID := range bundleIDs {
		domains = append(domains, c.domains[bundleID]...)
	}
	return dedupe(domains)
}

func (c *Catalog) Apps() []App {
	apps := make([]App, len(c.apps))
	for i, app := range c.apps {
		app.Domains = slices.Clone(c.domains[app.BundleID])
		apps[i] = app
	}
	return apps
}

func (c *Catalog) Presets() []Preset {
	presets := make([]Preset, len(c.presets))
	for i, preset := range c.presets {
		presets[i] = Preset{Name: preset.Name, Apps: slices.Clone(preset.Apps)}
	}
	return presets
}

// Preset returns the bundle identifiers blocked by the named focus mode.
func (c *Catalog) Preset(name string) ([]string, error) {
	for _, preset := range c.presets {
		if strings.EqualFold(preset.Name, name) {
			return c.ResolveBundleIDs(preset.Apps)
		}
	}
	return nil, errors.Wrapf(ErrUnknownPreset, "%q", name)
}

// EssentialApps are the apps left usable under an allow-list policy.
func (c *Catalog) EssentialApps() []string {
	return slices.Clone(c.essential)
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
