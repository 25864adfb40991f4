package catalog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(newTestDB(t))
	require.NoError(t, store.AutoMigrate())
	return store
}

func seedApp(t *testing.T, store *Store, owner uint, platform, bundleID string) *AppRecord {
	t.Helper()
	app := &AppRecord{
		OwnerID:  owner,
		Platform: platform,
		BundleID: bundleID,
		Name:     bundleID,
		IsPublic: true,
	}
	require.NoError(t, store.CreateApp(app))
	return app
}

func seedVersion(t *testing.T, store *Store, appID uint, token, versionName string) *VersionRecord {
	t.Helper()
	v := &VersionRecord{
		AppID:         appID,
		VersionCode:   "1",
		VersionName:   versionName,
		FileSize:      1024,
		FilePath:      "builds/" + token + ".apk",
		Channel:       "default",
		IsPublished:   true,
		DownloadToken: token,
	}
	require.NoError(t, store.CreateVersion(v))
	return v
}

func TestBundleUniquePerPlatform(t *testing.T) {
	store := newTestStore(t)

	seedApp(t, store, 1, PlatformAndroid, "com.example.app")

	// Same bundle on the other platform is a different app.
	seedApp(t, store, 1, PlatformIOS, "com.example.app")

	dup := &AppRecord{OwnerID: 2, Platform: PlatformAndroid, BundleID: "com.example.app", Name: "dup"}
	err := store.CreateApp(dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestGetAppNotFoundIsNil(t *testing.T) {
	store := newTestStore(t)

	app, err := store.GetApp(999)
	require.NoError(t, err)
	assert.Nil(t, app)

	app, err = store.GetAppByBundle(PlatformAndroid, "com.missing")
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestListAppsFilterAndPaging(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		seedApp(t, store, 1, PlatformAndroid, fmt.Sprintf("com.android.app%d", i))
	}
	seedApp(t, store, 1, PlatformIOS, "com.ios.app")
	seedApp(t, store, 2, PlatformAndroid, "com.other.app")

	apps, total, err := store.ListApps(AppFilter{OwnerID: 1, Platform: PlatformAndroid}, 1, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, apps, 3)
	// Newest first.
	assert.Equal(t, "com.android.app4", apps[0].BundleID)

	apps, _, err = store.ListApps(AppFilter{OwnerID: 1, Platform: PlatformAndroid}, 2, 3)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	apps, total, err = store.ListApps(AppFilter{OwnerID: 1, Search: "ios"}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "com.ios.app", apps[0].BundleID)
}

func TestUpdateAppKeepsIdentityFieldsImmutable(t *testing.T) {
	store := newTestStore(t)

	app := seedApp(t, store, 1, PlatformAndroid, "com.example.app")
	app.Name = "Renamed"
	app.BundleID = "com.example.other" // must not stick
	app.Platform = PlatformIOS         // must not stick
	require.NoError(t, store.UpdateApp(app))

	got, err := store.GetApp(app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "com.example.app", got.BundleID)
	assert.Equal(t, PlatformAndroid, got.Platform)
}

func TestTokenUniqueAcrossLiveVersions(t *testing.T) {
	store := newTestStore(t)
	app := seedApp(t, store, 1, PlatformAndroid, "com.example.app")

	seedVersion(t, store, app.ID, "tok-a", "1.0.0")
	dup := &VersionRecord{AppID: app.ID, VersionCode: "2", VersionName: "1.1.0", DownloadToken: "tok-a"}
	err := store.CreateVersion(dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestTokenRetiredAfterVersionDelete(t *testing.T) {
	store := newTestStore(t)
	app := seedApp(t, store, 1, PlatformAndroid, "com.example.app")
	v := seedVersion(t, store, app.ID, "tok-a", "1.0.0")

	inUse, err := store.TokenInUse("tok-a")
	require.NoError(t, err)
	assert.True(t, inUse)

	locator, err := store.DeleteVersion(v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.FilePath, locator)

	// The token stays burned even though the row is gone.
	inUse, err = store.TokenInUse("tok-a")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = store.TokenInUse("tok-b")
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestTokenRetiredAfterAppCascade(t *testing.T) {
	store := newTestStore(t)
	app := seedApp(t, store, 1, PlatformAndroid, "com.example.app")
	app.IconPath = "icons/abc.png"
	require.NoError(t, store.UpdateApp(app))
	seedVersion(t, store, app.ID, "tok-a", "1.0.0")
	seedVersion(t, store, app.ID, "tok-b", "1.1.0")

	locators, err := store.DeleteAppCascade(app.ID)
	require.NoError(t, err)
	assert.Len(t, locators, 3) // two builds plus the icon

	got, err := store.GetApp(app.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, token := range []string{"tok-a", "tok-b"} {
		inUse, err := store.TokenInUse(token)
		require.NoError(t, err)
		assert.True(t, inUse, "token %s should stay retired", token)
	}
}

func TestTogglePublished(t *testing.T) {
	store := newTestStore(t)
	app := seedApp(t, store, 1, PlatformAndroid, "com.example.app")
	v := seedVersion(t, store, app.ID, "tok-a", "1.0.0")

	published, err := store.TogglePublished(v.ID)
	require.NoError(t, err)
	assert.False(t, published)

	published, err = store.TogglePublished(v.ID)
	require.NoError(t, err)
	assert.True(t, published)

	_, err = store.TogglePublished(999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestIncrementDownloadIsExactUnderConcurrency(t *testing.T) {
	// Shared-cache DSN so every goroutine's connection sees one
	// database; a plain :memory: DSN is per-connection.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // sqlite: avoid SQLITE_BUSY under write contention
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())

	app := seedApp(t, store, 1, PlatformAndroid, "com.example.app")
	v := seedVersion(t, store, app.ID, "tok-a", "1.0.0")

	const resolves = 25
	values := make(chan int64, resolves)
	var wg sync.WaitGroup
	for i := 0; i < resolves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.IncrementDownload(v.ID)
			assert.NoError(t, err)
			values <- n
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool)
	for n := range values {
		assert.False(t, seen[n], "counter value %d returned twice", n)
		seen[n] = true
	}

	got, err := store.GetVersion(v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, resolves, got.DownloadCount)
}

func TestVersionStats(t *testing.T) {
	store := newTestStore(t)
	app1 := seedApp(t, store, 1, PlatformAndroid, "com.example.one")
	app2 := seedApp(t, store, 1, PlatformAndroid, "com.example.two")

	seedVersion(t, store, app1.ID, "tok-a", "1.0.0")
	seedVersion(t, store, app1.ID, "tok-b", "2.0.0")
	seedVersion(t, store, app2.ID, "tok-c", "0.9.0")

	counts, latest, err := store.VersionStats([]uint{app1.ID, app2.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[app1.ID])
	assert.EqualValues(t, 1, counts[app2.ID])
	assert.Equal(t, "2.0.0", latest[app1.ID])
	assert.Equal(t, "0.9.0", latest[app2.ID])
}

func TestSumDownloadsEmpty(t *testing.T) {
	store := newTestStore(t)
	total, err := store.SumDownloads()
	require.NoError(t, err)
	assert.Zero(t, total)
}
