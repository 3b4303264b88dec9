package datastore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/datastore"
)

func openTestStore(t *testing.T) datastore.Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStoreDispatch(t *testing.T) {
	sqliteSettings := &conf.Settings{}
	sqliteSettings.Output.SQLite.Enabled = true
	assert.IsType(t, &datastore.SQLiteStore{}, datastore.New(sqliteSettings))

	mysqlSettings := &conf.Settings{}
	mysqlSettings.Output.MySQL.Enabled = true
	assert.IsType(t, &datastore.MySQLStore{}, datastore.New(mysqlSettings))

	// SQLite takes precedence when both are enabled.
	bothSettings := &conf.Settings{}
	bothSettings.Output.SQLite.Enabled = true
	bothSettings.Output.MySQL.Enabled = true
	assert.IsType(t, &datastore.SQLiteStore{}, datastore.New(bothSettings))

	assert.Nil(t, datastore.New(&conf.Settings{}))
}

func TestOpenRequiresPath(t *testing.T) {
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true

	store := datastore.New(settings)
	assert.Error(t, store.Open())
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	run := &datastore.Run{
		RunID:     "11111111-2222-3333-4444-555555555555",
		ModelName: "face",
		StartTime: time.Now(),
		Status:    datastore.StatusRunning,
	}
	require.NoError(t, store.CreateRun(run))

	fetched, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "face", fetched.ModelName)
	assert.Equal(t, datastore.StatusRunning, fetched.Status)
	assert.Nil(t, fetched.EndTime)

	end := time.Now()
	run.EndTime = &end
	run.Status = datastore.StatusCompleted
	run.TotalImages = 5
	run.SuccessfulDetections = 4
	run.FailedDetections = 1
	run.AvgCPUUsage = 42.5
	require.NoError(t, store.UpdateRun(run))

	fetched, err = store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusCompleted, fetched.Status)
	assert.Equal(t, 5, fetched.TotalImages)
	assert.Equal(t, 4, fetched.SuccessfulDetections)
	assert.InDelta(t, 42.5, fetched.AvgCPUUsage, 1e-9)
	assert.NotNil(t, fetched.EndTime)
}

func TestUpdateUnknownRun(t *testing.T) {
	store := openTestStore(t)

	err := store.UpdateRun(&datastore.Run{RunID: "does-not-exist"})
	assert.Error(t, err)
}

func TestSaveAndQueryResults(t *testing.T) {
	store := openTestStore(t)

	run := &datastore.Run{RunID: "run-1", ModelName: "face", StartTime: time.Now(), Status: datastore.StatusRunning}
	require.NoError(t, store.CreateRun(run))

	avg := 0.8
	for i, name := range []string{"a.jpg", "b.jpg"} {
		require.NoError(t, store.SaveResult(&datastore.Result{
			RunID:           "run-1",
			ImagePath:       "/corpus/cats/" + name,
			ImageFilename:   name,
			Classification:  "cats",
			Success:         true,
			PersonsDetected: i,
			AvgConfidence:   &avg,
			Timestamp:       time.Now(),
		}))
	}
	// A result belonging to another run must not leak into the query.
	require.NoError(t, store.CreateRun(&datastore.Run{RunID: "run-2", ModelName: "face", StartTime: time.Now(), Status: datastore.StatusRunning}))
	require.NoError(t, store.SaveResult(&datastore.Result{
		RunID:         "run-2",
		ImagePath:     "/corpus/dogs/c.jpg",
		ImageFilename: "c.jpg",
		Timestamp:     time.Now(),
	}))

	results, err := store.RunResults("run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.jpg", results[0].ImageFilename, "insertion order is preserved")
	assert.Equal(t, "b.jpg", results[1].ImageFilename)
	require.NotNil(t, results[0].AvgConfidence)
	assert.InDelta(t, 0.8, *results[0].AvgConfidence, 1e-9)
}

func TestResultRequiresExistingRun(t *testing.T) {
	store := openTestStore(t)

	err := store.SaveResult(&datastore.Result{
		RunID:         "00000000-0000-0000-0000-000000000000",
		ImagePath:     "/corpus/cats/a.jpg",
		ImageFilename: "a.jpg",
		Timestamp:     time.Now(),
	})
	assert.Error(t, err, "a result must reference an existing run")
}

func TestRecentRuns(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateRun(&datastore.Run{
			RunID:     string(rune('a'+i)) + "-run",
			ModelName: "face",
			StartTime: base.Add(time.Duration(i) * time.Minute),
			Status:    datastore.StatusCompleted,
		}))
	}

	runs, err := store.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c-run", runs[0].RunID, "most recent run first")
}
