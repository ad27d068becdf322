package store

import (
	"reflect"
	"testing"
	"time"

	"pkgoracle/message"
)

func seedPackage(t *testing.T, m *MemoryStore, pkg, ver string) {
	t.Helper()
	if _, err := m.AddNewPackage(pkg, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddNewPackageVersion(pkg, ver, time.Now(), ""); err != nil {
		t.Fatal(err)
	}
}

func buildWithFile(pkg, ver, abi, filename string) message.BuildResult {
	return message.BuildResult{
		Package:  pkg,
		Version:  ver,
		ABITag:   abi,
		Status:   true,
		Duration: 10 * time.Second,
		Output:   "ok",
		Files: []message.FileInfo{
			{Filename: filename, Filesize: 1024, FileHash: "abc123", PackageTag: abi, PlatformTag: "linux_armv7l"},
		},
	}
}

func TestAddNewPackage(t *testing.T) {
	m := NewMemoryStore()
	added, err := m.AddNewPackage("numpy", "")
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("first AddNewPackage should report true")
	}
	added, err = m.AddNewPackage("numpy", "")
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("second AddNewPackage should report false")
	}
}

func TestAddVersionUnknownPackage(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.AddNewPackageVersion("ghost", "1.0", time.Now(), ""); err == nil {
		t.Fatal("expected error for unknown package")
	}
}

func TestDuplicateSuccessfulBuildRejected(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")

	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err == nil {
		t.Fatal("expected error for duplicate successful build")
	}
	// A failed attempt for the same ABI is fine.
	failed := buildWithFile("numpy", "1.0", "cp39", "")
	failed.Status = false
	failed.Files = nil
	if _, err := m.LogBuild(failed); err != nil {
		t.Errorf("failed build should be loggable: %v", err)
	}
}

func TestLogBuildAssignsIncreasingIDs(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	seedPackage(t, m, "flask", "2.0")

	id1, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := m.LogBuild(buildWithFile("flask", "2.0", "cp39", "flask-2.0-cp39.whl"))
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Errorf("build ids should increase: %d then %d", id1, id2)
	}
}

func TestLogDownloadUnknownFile(t *testing.T) {
	m := NewMemoryStore()
	err := m.LogDownload(message.Download{Filename: "ghost.whl", AccessedAt: time.Now()})
	if err == nil {
		t.Fatal("expected error for download of unknown file")
	}
}

func TestDeleteBuildCascades(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err != nil {
		t.Fatal(err)
	}
	if err := m.LogDownload(message.Download{Filename: "numpy-1.0-cp39.whl", AccessedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteBuild("numpy", "1.0"); err != nil {
		t.Fatal(err)
	}

	files, err := m.GetVersionFiles("numpy", "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("files should be removed, got %v", files)
	}
	stats, err := m.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := stats.Get("downloads_count"); v != message.Int(0) {
		t.Errorf("downloads should cascade away, got %v", v)
	}
	// The file is gone, so further downloads of it must be rejected.
	if err := m.LogDownload(message.Download{Filename: "numpy-1.0-cp39.whl", AccessedAt: time.Now()}); err == nil {
		t.Error("expected error logging download of deleted file")
	}
}

func TestSkipPackageCoversAllVersions(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	if _, err := m.AddNewPackageVersion("numpy", "1.1", time.Now(), ""); err != nil {
		t.Fatal(err)
	}

	if err := m.SkipPackage("numpy", "binary only"); err != nil {
		t.Fatal(err)
	}
	for _, ver := range []string{"1.0", "1.1"} {
		reason, err := m.GetVersionSkip("numpy", ver)
		if err != nil {
			t.Fatal(err)
		}
		if reason != "binary only" {
			t.Errorf("version %s skip = %q, want %q", ver, reason, "binary only")
		}
	}
}

func TestGetProjectVersions(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err != nil {
		t.Fatal(err)
	}
	failed := buildWithFile("numpy", "1.0", "cp310", "")
	failed.Status = false
	failed.Files = nil
	if _, err := m.LogBuild(failed); err != nil {
		t.Fatal(err)
	}

	vers, err := m.GetProjectVersions("numpy")
	if err != nil {
		t.Fatal(err)
	}
	if len(vers) != 1 {
		t.Fatalf("want 1 version row, got %d", len(vers))
	}
	row := vers[0].(message.List)
	if row[0] != message.String("1.0") {
		t.Errorf("version = %v", row[0])
	}
	if !reflect.DeepEqual(row[2], message.NewSet(message.String("cp39"))) {
		t.Errorf("succeeded ABIs = %v", row[2])
	}
	if !reflect.DeepEqual(row[3], message.NewSet(message.String("cp310"))) {
		t.Errorf("failed ABIs = %v", row[3])
	}
}

func TestGetAllPackageVersionsPairs(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	seedPackage(t, m, "flask", "2.0")

	vers, err := m.GetAllPackageVersions()
	if err != nil {
		t.Fatal(err)
	}
	want := message.NewSet(
		message.List{message.String("numpy"), message.String("1.0")},
		message.List{message.String("flask"), message.String("2.0")},
	)
	if !reflect.DeepEqual(vers, want) {
		t.Errorf("versions = %v, want %v", vers, want)
	}
}

func TestPyPISerial(t *testing.T) {
	m := NewMemoryStore()
	if err := m.SetPyPISerial(4711); err != nil {
		t.Fatal(err)
	}
	serial, err := m.GetPyPISerial()
	if err != nil {
		t.Fatal(err)
	}
	if serial != 4711 {
		t.Errorf("serial = %d, want 4711", serial)
	}
}

func TestGetBuildABIs(t *testing.T) {
	m := NewMemoryStore("cp39", "cp311")
	abis, err := m.GetBuildABIs()
	if err != nil {
		t.Fatal(err)
	}
	want := message.NewSet(message.String("cp39"), message.String("cp311"))
	if !reflect.DeepEqual(abis, want) {
		t.Errorf("abis = %v, want %v", abis, want)
	}
}

func TestFileDependencies(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err != nil {
		t.Fatal(err)
	}

	deps := message.Map{"apt": message.NewSet(message.String("libatlas3-base"))}
	if err := m.SetFileDependencies("numpy-1.0-cp39.whl", deps); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetFileDependencies("numpy-1.0-cp39.whl")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, deps) {
		t.Errorf("deps = %v, want %v", got, deps)
	}
	if _, err := m.GetFileDependencies("ghost.whl"); err == nil {
		t.Error("expected error for unknown file")
	}
}

func TestGetDownloadsRecent(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := m.LogDownload(message.Download{Filename: "numpy-1.0-cp39.whl", AccessedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	dl, err := m.GetDownloadsRecent()
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := dl.Get("numpy"); !ok || v != message.Int(3) {
		t.Errorf("numpy downloads = %v, want 3", v)
	}
}

func TestStatisticsCounts(t *testing.T) {
	m := NewMemoryStore()
	seedPackage(t, m, "numpy", "1.0")
	if _, err := m.LogBuild(buildWithFile("numpy", "1.0", "cp39", "numpy-1.0-cp39.whl")); err != nil {
		t.Fatal(err)
	}
	if err := m.LogDownload(message.Download{Filename: "numpy-1.0-cp39.whl", AccessedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	stats, err := m.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]message.Int{
		"packages_count":       1,
		"versions_count":       1,
		"builds_count":         1,
		"files_count":          1,
		"downloads_count":      1,
		"downloads_last_month": 1,
	}
	for name, n := range want {
		if v, ok := stats.Get(name); !ok || v != n {
			t.Errorf("%s = %v, want %d", name, v, n)
		}
	}
}

func TestCloseIsTerminal(t *testing.T) {
	m := NewMemoryStore()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != ErrClosed {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
	if _, err := m.GetAllPackages(); err != ErrClosed {
		t.Errorf("GetAllPackages after Close = %v, want ErrClosed", err)
	}
}
