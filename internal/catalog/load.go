package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/downloader"
	"gopkg.in/yaml.v3"
)

// File is the YAML form of a catalog. Unless Replace is set its entries
// extend the built-in table, and an app with exactly the name of a built-in
// one overrides it. Names must be unique within the file.
type File struct {
	Replace   bool     `yaml:"replace"`
	Apps      []App    `yaml:"apps"`
	Presets   []Preset `yaml:"presets"`
	Essential []string `yaml:"essential"`
}

func Parse(r io.Reader) (*Catalog, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	return file.build()
}

func (f File) build() (*Catalog, error) {
	if f.Replace {
		return newCatalog(f.Apps, f.Presets, f.Essential)
	}

	apps, err := overlay(Default().Apps(), f.Apps)
	if err != nil {
		return nil, err
	}
	presets := append(Default().Presets(), f.Presets...)
	essential := f.Essential
	if len(essential) == 0 {
		essential = Default().EssentialApps()
	}
	return newCatalog(apps, presets, essential)
}

// overlay replaces base entries whose name matches an override exactly and
// appends the rest.
func overlay(base, overrides []App) ([]App, error) {
	index := make(map[string]int, len(base))
	for i, app := range base {
		index[app.Name] = i
	}

	seen := make(map[string]struct{}, len(overrides))
	apps := slices.Clone(base)
	for _, app := range overrides {
		if _, dup := seen[app.Name]; dup {
			return nil, errors.Wrapf(ErrDuplicateApp, "%q", app.Name)
		}
		seen[app.Name] = struct{}{}

		if i, ok := index[app.Name]; ok {
			apps[i] = app
		} else {
			apps = append(apps, app)
		}
	}
	return apps, nil
}

// Load reads a catalog from a file path or an http(s) URL. An empty uri
// yields the built-in catalog.
func Load(ctx context.Context, logger *slog.Logger, uri string) (*Catalog, error) {
	if uri == "" {
		return Default(), nil
	}

	d := downloader.NewDownloader(logger)
	if password := urlPassword(uri); password != "" {
		d = d.WithRedaction(password)
	}

	var c *Catalog
	err := d.Open(ctx, "catalog", uri, func(r io.Reader) error {
		var err error
		c, err = Parse(r)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load catalog from %s", redact(uri))
	}

	logger.Info("Catalog loaded", "uri", redact(uri), "apps", len(c.apps), "presets", len(c.presets))
	return c, nil
}

func urlPassword(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return ""
	}
	password, _ := u.User.Password()
	return password
}

// redact masks the password of a catalog URL for logging.
func redact(uri string) string {
	if urlPassword(uri) == "" {
		return uri
	}
	u, _ := url.Parse(uri)
	return u.Redacted()
}
