package catalog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Contents(t *testing.T) {
	assert := assert.New(t)
	c := Default()

	assert.Len(c.Apps(), 33)
	assert.Len(c.domains, 7)
	assert.Len(c.Presets(), 3)
	assert.Len(c.EssentialApps(), 14)
	assert.Same(c, Default())
}

func TestResolveBundleID(t *testing.T) {
	assert := assert.New(t)
	c := Default()

	bundleID, err := c.ResolveBundleID("Instagram")
	assert.NoError(err)
	assert.Equal("com.burbn.instagram", bundleID)

	bundleID, err = c.ResolveBundleID("Twitter/X")
	assert.NoError(err)
	assert.Equal("com.twitter.twitter", bundleID)

	bundleID, err = c.ResolveBundleID("tv.twitch")
	assert.NoError(err)
	assert.Equal("tv.twitch", bundleID)

	_, err = c.ResolveBundleID("Myspace")
	assert.True(errors.Is(err, ErrUnknownApp))

	_, err = c.ResolveBundleID("instagram")
	assert.True(errors.Is(err, ErrUnknownApp))
}

func TestNewCatalog_NamesAreCaseSensitive(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(strings.NewReader(`
replace: true
apps:
  - name: Notes
    bundle_id: com.apple.mobilenotes
  - name: notes
    bundle_id: com.example.othernotes
`))
	require.NoError(t, err)
	assert.Len(c.Apps(), 2)

	bundleID, err := c.ResolveBundleID("Notes")
	assert.NoError(err)
	assert.Equal("com.apple.mobilenotes", bundleID)

	bundleID, err = c.ResolveBundleID("notes")
	assert.NoError(err)
	assert.Equal("com.example.othernotes", bundleID)

	_, err = c.ResolveBundleID("NOTES")
	assert.True(errors.Is(err, ErrUnknownApp))
}

func TestNewCatalog_DuplicateName(t *testing.T) {
	_, err := Parse(strings.NewReader(`
replace: true
apps:
  - name: Notes
    bundle_id: com.apple.mobilenotes
  - name: Notes
    bundle_id: com.example.othernotes
`))
	assert.True(t, errors.Is(err, ErrDuplicateApp))

	_, err = Parse(strings.NewReader(`
apps:
  - name: Threads
    bundle_id: com.burbn.barcelona
  - name: Threads
    bundle_id: com.example.threads
`))
	assert.True(t, errors.Is(err, ErrDuplicateApp))
}

func TestParse_OverridesExactNameOnly(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(strings.NewReader(`
apps:
  - name: Instagram
    bundle_id: com.example.instagram
  - name: instagram
    bundle_id: com.example.lowercase
`))
	require.NoError(t, err)
	assert.Len(c.Apps(), 34)

	bundleID, err := c.ResolveBundleID("Instagram")
	assert.NoError(err)
	assert.Equal("com.example.instagram", bundleID)

	bundleID, err = c.ResolveBundleID("instagram")
	assert.NoError(err)
	assert.Equal("com.example.lowercase", bundleID)
}

func TestResolveBundleIDs_Dedupes(t *testing.T) {
	bundleIDs, err := Default().ResolveBundleIDs([]string{"YouTube", "Instagram", "YouTube"})
	require.NoError(t, err)
	assert.Equal(t, []string{"com.google.ios.youtube", "com.burbn.instagram"}, bundleIDs)
}

func TestAppName(t *testing.T) {
	assert := assert.New(t)
	c := Default()

	name, ok := c.AppName("com.reddit.Reddit")
	assert.True(ok)
	assert.Equal("Reddit", name)

	_, ok = c.AppName("com.example.nothing")
	assert.False(ok)
}

func TestAppName_FirstMatchWins(t *testing.T) {
	c, err := newCatalog([]App{
		{Name: "X", BundleID: "com.twitter.twitter"},
		{Name: "Twitter", BundleID: "com.twitter.twitter"},
	}, nil, nil)
	require.NoError(t, err)

	name, ok := c.AppName("com.twitter.twitter")
	assert.True(t, ok)
	assert.Equal(t, "X", name)
}

func TestRelatedDomains_ReturnsCopy(t *testing.T) {
	c := Default()

	domains := c.RelatedDomains("com.netflix.Netflix")
	assert.Equal(t, []string{"netflix.com", "www.netflix.com"}, domains)

	domains[0] = "tampered.example"
	assert.Equal(t, "netflix.com", c.RelatedDomains("com.netflix.Netflix")[0])
	assert.Empty(t, c.RelatedDomains("tv.twitch"))
}

func TestDomainsFor(t *testing.T) {
	domains := Default().DomainsFor([]string{"com.netflix.Netflix", "tv.twitch", "com.netflix.Netflix", "com.burbn.instagram"})

	assert.Equal(t, []string{
		"netflix.com", "www.netflix.com",
		"instagram.com", "www.instagram.com", "m.instagram.com",
	}, domains)
}

func TestPreset(t *testing.T) {
	assert := assert.New(t)
	c := Default()

	bundleIDs, err := c.Preset("study mode")
	assert.NoError(err)
	assert.Equal([]string{
		"com.burbn.instagram",
		"com.google.ios.youtube",
		"com.zhiliaoapp.musically",
		"com.netflix.Netflix",
		"com.hammerandchisel.discord",
	}, bundleIDs)

	_, err = c.Preset("Nap Time")
	assert.True(errors.Is(err, ErrUnknownPreset))
}

func TestWithApexDomains(t *testing.T) {
	domains := WithApexDomains([]string{"music.youtube.com", "youtu.be", "m.tiktok.com", "co.uk"})

	assert.Equal(t, []string{"music.youtube.com", "youtu.be", "m.tiktok.com", "co.uk", "youtube.com", "tiktok.com"}, domains)
}

func TestParse_ExtendsDefault(t *testing.T) {
	assert := assert.New(t)

	c, err := Parse(strings.NewReader(`
apps:
  - name: Threads
    bundle_id: com.burbn.barcelona
    category: Social Media
    domains: [threads.net, www.threads.net]
presets:
  - name: Doomscroll
    apps: [Threads, Instagram]
`))
	require.NoError(t, err)

	assert.Len(c.Apps(), 34)
	assert.Len(c.Presets(), 4)
	assert.Len(c.EssentialApps(), 14)

	bundleIDs, err := c.Preset("Doomscroll")
	assert.NoError(err)
	assert.Equal([]string{"com.burbn.barcelona", "com.burbn.instagram"}, bundleIDs)
	assert.Equal([]string{"threads.net", "www.threads.net"}, c.RelatedDomains("com.burbn.barcelona"))
}

func TestParse_Replace(t *testing.T) {
	c, err := Parse(strings.NewReader(`
replace: true
apps:
  - name: Chess
    bundle_id: com.chess.iphone
essential: [com.apple.mobilephone]
`))
	require.NoError(t, err)

	assert.Len(t, c.Apps(), 1)
	assert.Empty(t, c.Presets())
	assert.Equal(t, []string{"com.apple.mobilephone"}, c.EssentialApps())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("apps:\n  - name: NoBundle\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("presets:\n  - name: Broken\n    apps: [Myspace]\n"))
	assert.True(t, errors.Is(err, ErrUnknownApp))

	_, err = Parse(strings.NewReader("colour: blue\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	body := "apps:\n  - name: Threads\n    bundle_id: com.burbn.barcelona\n"

	t.Run("empty uri", func(t *testing.T) {
		c, err := Load(context.Background(), logger, "")
		require.NoError(t, err)
		assert.Same(t, Default(), c)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))

		c, err := Load(context.Background(), logger, path)
		require.NoError(t, err)
		assert.Len(t, c.Apps(), 34)
	})

	t.Run("http", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		defer server.Close()

		c, err := Load(context.Background(), logger, server.URL+"/catalog.yaml")
		require.NoError(t, err)
		_, err = c.ResolveBundleID("threads")
		assert.NoError(t, err)
	})

	t.Run("http error", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		_, err := Load(context.Background(), logger, server.URL)
		assert.Error(t, err)
	})
}

func TestLoad_RedactsURLPassword(t *testing.T) {
	assert := assert.New(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, password, ok := r.BasicAuth(); !ok || password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("apps:\n  - name: Threads\n    bundle_id: com.burbn.barcelona\n"))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL + "/catalog.yaml")
	require.NoError(t, err)

	u.User = url.UserPassword("hideaway", "s3cret")
	c, err := Load(context.Background(), logger, u.String())
	require.NoError(t, err)
	assert.Len(c.Apps(), 34)

	u.User = url.UserPassword("hideaway", "wr0ng")
	_, err = Load(context.Background(), logger, u.String())
	require.Error(t, err)
	assert.NotContains(err.Error(), "wr0ng")

	assert.Contains(logs.String(), "Catalog loaded")
	assert.NotContains(logs.String(), "s3cret")
	assert.NotContains(logs.String(), "wr0ng")
}

func TestSource_Reload(t *testing.T) {
	assert := assert.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apps:\n  - name: Threads\n    bundle_id: com.burbn.barcelona\n"), 0644))

	source, err := NewSource(context.Background(), logger, path)
	require.NoError(t, err)
	before := source.Current()
	assert.Len(before.Apps(), 34)

	require.NoError(t, os.WriteFile(path, []byte("apps:\n  - name: Threads\n    bundle_id: com.burbn.barcelona\n  - name: Bluesky\n    bundle_id: xyz.blueskyweb.app\n"), 0644))
	NewReloadCronJob(source).Run()
	assert.Len(source.Current().Apps(), 35)
	assert.Len(before.Apps(), 34)

	require.NoError(t, os.WriteFile(path, []byte("apps: [not: valid"), 0644))
	assert.Error(source.Reload(context.Background()))
	assert.Len(source.Current().Apps(), 35)
}

func TestStatic(t *testing.T) {
	source := Static(Default())
	assert.Same(t, Default(), source.Current())
	assert.NoError(t, source.Reload(context.Background()))
	assert.Empty(t, source.URI())
}
