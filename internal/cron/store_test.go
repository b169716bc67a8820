package cron

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func testJob(id string) *Job {
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	executed := created.Add(time.Hour)
	return &Job{
		ID:             id,
		UserID:         "u1",
		Name:           "nightly-report",
		Description:    "daily summary",
		CronExpression: "0 6 * * *",
		Command:        "echo report",
		ChannelID:      "c1",
		Enabled:        true,
		CreatedAt:      created,
		UpdatedAt:      created,
		LastExecutedAt: &executed,
		ExecutionCount: 3,
		Timezone:       "UTC",
	}
}

func TestJob_SerializationRoundTrip(t *testing.T) {
	job := testJob("job-1")

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	var back Job
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(*job, back) {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", *job, back)
	}
}

func TestFileStore_PersistsUnderJobsDir(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	job := testJob("job-1")
	if err := fs.Save(job); err != nil {
		t.Fatal(err)
	}

	// Stable layout: cron dir / jobs / {id}.json
	if got := fs.path("job-1"); got != filepath.Join(dir, "jobs", "job-1.json") {
		t.Errorf("path = %s", got)
	}

	// A new store instance reloads from disk.
	fs2, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := fs2.Get("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*job, *loaded) {
		t.Errorf("reloaded job differs:\n in: %+v\nout: %+v", *job, *loaded)
	}
}

func TestFileStore_GetReturnsCopy(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	fs.Save(testJob("job-1"))

	a, _ := fs.Get("job-1")
	a.Name = "mutated"

	b, _ := fs.Get("job-1")
	if b.Name != "nightly-report" {
		t.Error("store cache leaked a mutable reference")
	}
}

func TestFileStore_Delete(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	fs.Save(testJob("job-1"))

	if err := fs.Delete("job-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Get("job-1"); err != ErrJobNotFound {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
	if err := fs.Delete("job-1"); err != ErrJobNotFound {
		t.Errorf("double delete err = %v, want ErrJobNotFound", err)
	}
}
