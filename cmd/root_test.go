package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/rm-hull/hideaway/internal/nanomdm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const udid = "00008030-001A2B3C4D5E802E"

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	root := NewRootCommand()
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

type fakeNanoMDM struct {
	server   *httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	lastPath string
	lastBody []byte
}

func (f *fakeNanoMDM) last() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath, string(f.lastBody)
}

func newFakeNanoMDM(t *testing.T) *fakeNanoMDM {
	t.Helper()
	f := &fakeNanoMDM{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version" {
			_, _ = w.Write([]byte(`{"version":"v0.7.0"}`))
			return
		}
		f.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastPath, f.lastBody = r.URL.Path, body
		f.mu.Unlock()
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"status":{"` + udid + `":{"push_result":"ok"}}}`))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func TestGenerate(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	out, err := run(t, "generate", "--dir", dir)
	require.NoError(t, err)

	for _, name := range []string{
		"focus_mode_social_media_block.mobileconfig",
		"focus_mode_study_mode.mobileconfig",
		"focus_mode_work_focus.mobileconfig",
		"remove_restrictions.mobileconfig",
	} {
		assert.FileExists(filepath.Join(dir, name))
		assert.Contains(out, name)
	}
	assert.Contains(out, "VPN & Device Management")
}

func TestEnroll(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	out, err := run(t, "enroll", "--output-dir", dir, "--device", "Kid's iPhone")
	require.NoError(t, err)

	path := filepath.Join(dir, "enroll_kid'siphone.mobileconfig")
	assert.Contains(out, path)

	profile, err := mobileconfig.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("Hideaway Enrollment - Kid's iPhone", profile.PayloadDisplayName)
	assert.Len(profile.PayloadsOfType(mobileconfig.SCEPPayloadType), 1)
	assert.Len(profile.PayloadsOfType(mobileconfig.MDMPayloadType), 1)
}

func TestBlock_Offline(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	out, err := run(t, "block", "Instagram", "TikTok", "--name", "Evening", "--output-dir", dir, "--offline")
	require.NoError(t, err)

	path := filepath.Join(dir, "evening.mobileconfig")
	assert.Contains(out, "wrote "+path)

	profile, err := mobileconfig.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("com.hideaway.evening", profile.PayloadIdentifier)
	assert.Equal("Blocks apps: Instagram, TikTok", profile.PayloadDescription)
	assert.Len(profile.PayloadsOfType(mobileconfig.WebContentFilterPayloadType), 1)
}

func TestBlock_PresetWithoutWebFilter(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	_, err := run(t, "block", "--preset", "study mode", "--web=false", "--output-dir", dir)
	require.NoError(t, err)

	profile, err := mobileconfig.ReadFile(filepath.Join(dir, "studymode.mobileconfig"))
	require.NoError(t, err)
	assert.Equal("Study Mode", profile.PayloadDisplayName)
	assert.Len(profile.PayloadContent, 1)
}

func TestBlock_WebOnly(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "block", "--web-only", "reddit.com", "--output-dir", dir)
	require.NoError(t, err)

	profile, err := mobileconfig.ReadFile(filepath.Join(dir, "websiteblock.mobileconfig"))
	require.NoError(t, err)
	assert.Len(t, profile.PayloadsOfType(mobileconfig.WebContentFilterPayloadType), 1)
	assert.Empty(t, profile.PayloadsOfType(mobileconfig.AppAccessPayloadType))
}

func TestBlock_ViaNanoMDM(t *testing.T) {
	assert := assert.New(t)
	nano := newFakeNanoMDM(t)

	out, err := run(t, "block", "--preset", "Work Focus", "--device", udid, "--nanomdm-url", nano.server.URL)
	require.NoError(t, err)

	assert.Equal(int32(1), nano.calls.Load())
	path, _ := nano.last()
	assert.Equal("/v1/enqueue/"+udid, path)
	assert.Contains(out, "queued "+nanomdm.InstallProfile+" com.hideaway.workfocus for 1 device")
}

func TestBlock_Errors(t *testing.T) {
	_, err := run(t, "block", "--offline")
	assert.ErrorContains(t, err, "specify apps")

	_, err = run(t, "block", "NotAnApp", "--offline", "--output-dir", t.TempDir())
	assert.ErrorContains(t, err, "NotAnApp")
}

func TestUnblock_ViaNanoMDM(t *testing.T) {
	assert := assert.New(t)
	nano := newFakeNanoMDM(t)

	out, err := run(t, "unblock", "--preset", "Study Mode", "--device", udid, "--nanomdm-url", nano.server.URL)
	require.NoError(t, err)

	_, body := nano.last()
	assert.Contains(body, "com.hideaway.studymode")
	assert.Contains(out, "queued "+nanomdm.RemoveProfile+" com.hideaway.studymode")
}

func TestUnblock_Offline(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "unblock", "--output-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "remove_restrictions.mobileconfig")

	profile, err := mobileconfig.ReadFile(filepath.Join(dir, "remove_restrictions.mobileconfig"))
	require.NoError(t, err)
	assert.True(t, profile.IsRemoval())
}

func TestPing(t *testing.T) {
	assert := assert.New(t)
	nano := newFakeNanoMDM(t)

	out, err := run(t, "ping", "--nanomdm-url", nano.server.URL)
	require.NoError(t, err)
	assert.Contains(out, "nanomdm v0.7.0 at "+nano.server.URL)
	assert.Equal(int32(0), nano.calls.Load())

	out, err = run(t, "ping", "--device", udid, "--list-profiles", "--nanomdm-url", nano.server.URL)
	require.NoError(t, err)
	assert.Contains(out, "pushed 1 device")
	assert.Contains(out, "queued "+nanomdm.ProfileList+" for 1 device")
	assert.Equal(int32(2), nano.calls.Load())

	path, _ := nano.last()
	assert.Equal("/v1/enqueue/"+udid, path)
}

func TestPing_PushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version" {
			_, _ = w.Write([]byte(`{"version":"v0.7.0"}`))
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"status":{"` + udid + `":{"push_error":"device token invalid"}}}`))
	}))
	t.Cleanup(server.Close)

	out, err := run(t, "ping", "--device", udid, "--nanomdm-url", server.URL)
	assert.ErrorContains(t, err, "push failed for 1 of 1 device")
	assert.Contains(t, out, udid+": push failed: device token invalid")
}

func TestPing_Errors(t *testing.T) {
	_, err := run(t, "ping", "--list-profiles")
	assert.ErrorContains(t, err, "--device")
}

const brokenProfile = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>PayloadType</key>
	<string>Configuration</string>
	<key>PayloadContent</key>
	<array/>
</dict>
</plist>
`

func TestValidate_Files(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	_, err := run(t, "generate", "--dir", dir)
	require.NoError(t, err)

	good := filepath.Join(dir, "focus_mode_study_mode.mobileconfig")
	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(out, "valid "+good)
	assert.Contains(out, "Summary")

	broken := filepath.Join(dir, "broken.mobileconfig")
	require.NoError(t, os.WriteFile(broken, []byte(brokenProfile), 0644))
	garbage := filepath.Join(dir, "garbage.mobileconfig")
	require.NoError(t, os.WriteFile(garbage, []byte("not a plist"), 0644))

	out, err = run(t, "validate", good, broken, garbage)
	assert.True(errors.Is(err, errInvalidProfiles))
	assert.Contains(out, "invalid "+broken)
	assert.Contains(out, "PayloadVersion is missing")
	assert.Contains(out, "invalid "+garbage)
	assert.Contains(out, "1 of 3 profiles valid")
}

func TestValidate_All(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	_, err := run(t, "generate", "--dir", dir)
	require.NoError(t, err)

	out, err := run(t, "validate", "--all", dir)
	require.NoError(t, err)
	assert.Contains(out, "4 of 4 profiles valid")

	out, err = run(t, "validate", "--all", t.TempDir())
	require.NoError(t, err)
	assert.Contains(out, "no .mobileconfig files")
}

func TestValidate_CreateTest(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	out, err := run(t, "validate", "--create-test", "--output-dir", dir)
	require.NoError(t, err)

	path := filepath.Join(dir, testProfileName)
	assert.Contains(out, "valid "+path)

	profile, err := mobileconfig.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("com.test.profile", profile.PayloadIdentifier)
	assert.Equal("Test", profile.PayloadOrganization)

	payloads := profile.PayloadsOfType(mobileconfig.AppAccessPayloadType)
	require.Len(t, payloads, 1)
	assert.Equal("com.test.restriction", payloads[0].Common().PayloadIdentifier)
}

func TestCatalog(t *testing.T) {
	assert := assert.New(t)

	out, err := run(t, "catalog")
	require.NoError(t, err)
	assert.Contains(out, "com.burbn.instagram")
	assert.Contains(out, "Study Mode")

	out, err = run(t, "catalog", "--json")
	require.NoError(t, err)

	var listing struct {
		Apps      []map[string]any `json:"apps"`
		Presets   []map[string]any `json:"presets"`
		Essential []string         `json:"essential"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Len(listing.Apps, 33)
	assert.Len(listing.Presets, 3)
	assert.Len(listing.Essential, 14)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hideaway ")
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := run(t, "catalog", "--policy", "maybe")
	assert.ErrorContains(t, err, "profiles.policy")

	_, err = run(t, "catalog", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestExecute_ExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, Execute(context.Background(), []string{"version"}, &stdout, &stderr))
	assert.Equal(t, 1, Execute(context.Background(), []string{"block", "--offline"}, &stdout, &stderr))
}
