package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/artifact"
	"github.com/hangarhq/hangar/pkg/identity"
	"github.com/hangarhq/hangar/pkg/inspect"
)

var (
	owner    = &identity.Principal{UserID: 1, Username: "owner"}
	stranger = &identity.Principal{UserID: 2, Username: "stranger"}
	admin    = &identity.Principal{UserID: 3, Username: "admin", IsAdmin: true}
)

func newTestService(t *testing.T) (*Service, artifact.Store) {
	t.Helper()
	store := newTestStore(t)
	artifacts, err := artifact.NewFilesystemStore(t.TempDir(), "/api/files")
	require.NoError(t, err)
	svc := NewService(store, artifacts, inspect.New(), nil, Config{
		PublicBaseURL: "http://hangar.test",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, artifacts
}

func createTestApp(t *testing.T, svc *Service, p *identity.Principal, platform, bundleID string) *App {
	t.Helper()
	app, err := svc.CreateApp(p, CreateAppInput{BundleID: bundleID, Platform: platform, Name: bundleID})
	require.NoError(t, err)
	return app
}

// minimalIPA builds a syntactically valid .ipa carrying only an
// Info.plist for the given bundle id.
func minimalIPA(t *testing.T, bundleID string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("Payload/Test.app/Info.plist")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0"><dict>
	<key>CFBundleIdentifier</key><string>` + bundleID + `</string>
	<key>CFBundleShortVersionString</key><string>2.4.0</string>
	<key>CFBundleVersion</key><string>240</string>
	<key>CFBundleDisplayName</key><string>Test App</string>
</dict></plist>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadInput(name string, payload []byte) UploadInput {
	return UploadInput{
		Filename: name,
		Size:     int64(len(payload)),
		Content:  bytes.NewReader(payload),
	}
}

func TestCreateAppValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateApp(owner, CreateAppInput{Platform: PlatformAndroid})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = svc.CreateApp(owner, CreateAppInput{BundleID: "com.example.a", Platform: "windows"})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	// Name defaults to the bundle id.
	app, err := svc.CreateApp(owner, CreateAppInput{BundleID: "com.example.a", Platform: PlatformAndroid})
	require.NoError(t, err)
	assert.Equal(t, "com.example.a", app.Name)
	assert.True(t, app.IsPublic)
}

func TestCreateAppDuplicateConflict(t *testing.T) {
	svc, _ := newTestService(t)

	createTestApp(t, svc, owner, PlatformAndroid, "com.example.a")
	_, err := svc.CreateApp(stranger, CreateAppInput{BundleID: "com.example.a", Platform: PlatformAndroid})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestFindOrCreateApp(t *testing.T) {
	svc, _ := newTestService(t)

	in := CreateAppInput{BundleID: "com.example.a", Platform: PlatformAndroid, Name: "A"}

	app1, created, err := svc.FindOrCreateApp(owner, in)
	require.NoError(t, err)
	assert.True(t, created)

	app2, created, err := svc.FindOrCreateApp(owner, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, app1.ID, app2.ID)

	// A different user cannot adopt somebody else's bundle id.
	_, _, err = svc.FindOrCreateApp(stranger, in)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestVisibilityRules(t *testing.T) {
	svc, _ := newTestService(t)

	app := createTestApp(t, svc, owner, PlatformAndroid, "com.example.a")

	// Public app: readable by anyone, writable only by the owner.
	_, err := svc.GetApp(stranger, app.ID)
	require.NoError(t, err)
	_, err = svc.UpdateApp(stranger, app.ID, UpdateAppInput{})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	// Private app: invisible to strangers, even for writes.
	private := false
	_, err = svc.UpdateApp(owner, app.ID, UpdateAppInput{IsPublic: &private})
	require.NoError(t, err)

	_, err = svc.GetApp(stranger, app.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	_, err = svc.UpdateApp(stranger, app.ID, UpdateAppInput{})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	// Admins bypass both checks.
	_, err = svc.GetApp(admin, app.ID)
	require.NoError(t, err)
	_, err = svc.UpdateApp(admin, app.ID, UpdateAppInput{})
	require.NoError(t, err)
}

func TestUploadIPAExtractsMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	version, warning, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.ios")))
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, "240", version.VersionCode)
	assert.Equal(t, "2.4.0", version.VersionName)
	assert.Equal(t, "default", version.Channel)
	assert.True(t, version.IsPublished)
	assert.NotEmpty(t, version.DownloadToken)
	assert.Equal(t, "http://hangar.test/api/download/"+version.DownloadToken+"/file", version.DownloadURL)
}

func TestUploadBundleMismatchWarns(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	version, warning, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.other")))
	require.NoError(t, err)
	assert.Contains(t, warning, "does not match")
	assert.NotNil(t, version)
}

func TestUploadGarbageFallsBackToDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformAndroid, "com.example.a")

	version, warning, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.apk", []byte("not a zip archive at all")))
	require.NoError(t, err)
	assert.Contains(t, warning, "inspection failed")
	assert.Equal(t, "1", version.VersionCode)
	assert.Equal(t, "1.0.0", version.VersionName)
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformAndroid, "com.example.a")

	_, _, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.a")))
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestUploadRejectsOversize(t *testing.T) {
	store := newTestStore(t)
	artifacts, err := artifact.NewFilesystemStore(t.TempDir(), "/api/files")
	require.NoError(t, err)
	svc := NewService(store, artifacts, nil, nil, Config{MaxUploadBytes: 64}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	app, err := svc.CreateApp(owner, CreateAppInput{BundleID: "com.example.a", Platform: PlatformAndroid})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("x"), 128)
	_, _, err = svc.CreateVersion(context.Background(), owner, app.ID, uploadInput("build.apk", payload))
	assert.True(t, apperror.IsKind(err, apperror.KindPayloadTooLarge))

	// Nothing recorded, nothing stored.
	versions, err := svc.ListVersions(owner, app.ID)
	require.NoError(t, err)
	assert.Empty(t, versions.Items)
}

func TestUploadTokensNeverRepeat(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")
	ipa := minimalIPA(t, "com.example.ios")

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		version, _, err := svc.CreateVersion(context.Background(), owner, app.ID, uploadInput("build.ipa", ipa))
		require.NoError(t, err)
		require.False(t, seen[version.DownloadToken])
		seen[version.DownloadToken] = true

		require.NoError(t, svc.DeleteVersion(owner, version.ID))
	}
}

func TestDeleteVersionRemovesArtifact(t *testing.T) {
	svc, artifacts := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	version, _, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.ios")))
	require.NoError(t, err)

	record, err := svc.Store().GetVersion(version.ID)
	require.NoError(t, err)
	_, _, err = artifacts.Open(record.FilePath)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteVersion(owner, version.ID))
	_, _, err = artifacts.Open(record.FilePath)
	assert.Error(t, err)
}

func TestDeleteAppCascades(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	version, _, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.ios")))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteApp(owner, app.ID))

	_, err = svc.GetApp(owner, app.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	inUse, err := svc.Store().TokenInUse(version.DownloadToken)
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestUpdateVersionMetaOnly(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	version, _, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.ios")))
	require.NoError(t, err)

	channel := "beta"
	notes := "fixes crash on launch"
	force := true
	updated, err := svc.UpdateVersion(owner, version.ID, UpdateVersionInput{
		Channel: &channel, ReleaseNotes: &notes, ForceUpdate: &force,
	})
	require.NoError(t, err)
	assert.Equal(t, "beta", updated.Channel)
	require.NotNil(t, updated.ReleaseNotes)
	assert.Equal(t, notes, *updated.ReleaseNotes)
	assert.True(t, updated.ForceUpdate)
	assert.Equal(t, version.VersionName, updated.VersionName)
	assert.Equal(t, version.DownloadToken, updated.DownloadToken)
}

func TestTogglePublishRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	version, _, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.ios")))
	require.NoError(t, err)

	published, err := svc.TogglePublish(owner, version.ID)
	require.NoError(t, err)
	assert.False(t, published)

	published, err = svc.TogglePublish(owner, version.ID)
	require.NoError(t, err)
	assert.True(t, published)

	_, err = svc.TogglePublish(stranger, version.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}

func TestListAppsReportsVersionStats(t *testing.T) {
	svc, _ := newTestService(t)
	app := createTestApp(t, svc, owner, PlatformIOS, "com.example.ios")

	_, _, err := svc.CreateVersion(context.Background(), owner, app.ID,
		uploadInput("build.ipa", minimalIPA(t, "com.example.ios")))
	require.NoError(t, err)

	list, err := svc.ListApps(owner, "", 1, 20)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.EqualValues(t, 1, list.Items[0].VersionCount)
	require.NotNil(t, list.Items[0].LatestVersion)
	assert.Equal(t, "2.4.0", *list.Items[0].LatestVersion)
}
