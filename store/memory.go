package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pkgoracle/message"
)

// ErrClosed is returned by every MemoryStore method after Close.
var ErrClosed = errors.New("store: connection closed")

type versionRecord struct {
	released time.Time
	skip     string
	builds   []message.BuildResult
}

type pkgRecord struct {
	skip     string
	versions map[string]*versionRecord
}

// MemoryStore is an in-process Database implementation backed by maps. It
// enforces the same referential constraints a relational schema would
// (unknown packages, unregistered versions, duplicate builds, downloads of
// unknown files), so error paths behave like the real store's.
//
// The mutex makes a single MemoryStore shareable as the common backing
// database behind several workers in tests; each worker still treats its
// handle as an exclusive connection.
type MemoryStore struct {
	mu          sync.Mutex
	packages    map[string]*pkgRecord
	fileOwner   map[string]string // filename → package
	fileDeps    map[string]message.Map
	downloads   []message.Download
	abis        []string
	pypiSerial  int64
	nextBuildID int64
	closed      bool
}

// NewMemoryStore creates an empty store configured with the given build ABI
// tags.
func NewMemoryStore(abis ...string) *MemoryStore {
	return &MemoryStore{
		packages:    make(map[string]*pkgRecord),
		fileOwner:   make(map[string]string),
		fileDeps:    make(map[string]message.Map),
		abis:        abis,
		nextBuildID: 1,
	}
}

func (m *MemoryStore) GetAllPackages() (message.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	elems := make([]message.Value, 0, len(m.packages))
	for pkg := range m.packages {
		elems = append(elems, message.String(pkg))
	}
	return message.NewSet(elems...), nil
}

func (m *MemoryStore) GetAllPackageVersions() (message.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var elems []message.Value
	for pkg, rec := range m.packages {
		for ver := range rec.versions {
			elems = append(elems, message.List{message.String(pkg), message.String(ver)})
		}
	}
	return message.NewSet(elems...), nil
}

func (m *MemoryStore) AddNewPackage(pkg, skip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.packages[pkg]; ok {
		return false, nil
	}
	m.packages[pkg] = &pkgRecord{skip: skip, versions: make(map[string]*versionRecord)}
	return true, nil
}

func (m *MemoryStore) AddNewPackageVersion(pkg, ver string, released time.Time, skip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	rec, ok := m.packages[pkg]
	if !ok {
		return false, fmt.Errorf("unknown package %q", pkg)
	}
	if _, ok := rec.versions[ver]; ok {
		return false, nil
	}
	rec.versions[ver] = &versionRecord{released: released, skip: skip}
	return true, nil
}

func (m *MemoryStore) SkipPackage(pkg, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	rec, ok := m.packages[pkg]
	if !ok {
		return fmt.Errorf("unknown package %q", pkg)
	}
	rec.skip = reason
	for _, v := range rec.versions {
		v.skip = reason
	}
	return nil
}

func (m *MemoryStore) SkipPackageVersion(pkg, ver, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	v, err := m.version(pkg, ver)
	if err != nil {
		return err
	}
	v.skip = reason
	return nil
}

func (m *MemoryStore) LogDownload(dl message.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.fileOwner[dl.Filename]; !ok {
		return fmt.Errorf("unknown file %q", dl.Filename)
	}
	m.downloads = append(m.downloads, dl)
	return nil
}

func (m *MemoryStore) LogBuild(b message.BuildResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	v, err := m.version(b.Package, b.Version)
	if err != nil {
		return 0, err
	}
	if b.Status {
		for _, prev := range v.builds {
			if prev.Status && prev.ABITag == b.ABITag {
				return 0, fmt.Errorf("duplicate build of %s %s for %s", b.Package, b.Version, b.ABITag)
			}
		}
	}
	b.BuildID = m.nextBuildID
	m.nextBuildID++
	for _, f := range b.Files {
		m.fileOwner[f.Filename] = b.Package
	}
	v.builds = append(v.builds, b)
	return b.BuildID, nil
}

func (m *MemoryStore) DeleteBuild(pkg, ver string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	v, err := m.version(pkg, ver)
	if err != nil {
		return err
	}
	removed := make(map[string]bool)
	for _, b := range v.builds {
		for _, f := range b.Files {
			removed[f.Filename] = true
			delete(m.fileOwner, f.Filename)
			delete(m.fileDeps, f.Filename)
		}
	}
	v.builds = nil
	// Cascade to download records of the removed files.
	kept := m.downloads[:0]
	for _, dl := range m.downloads {
		if !removed[dl.Filename] {
			kept = append(kept, dl)
		}
	}
	m.downloads = kept
	return nil
}

func (m *MemoryStore) GetPackageFiles(pkg string) (message.Map, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("unknown package %q", pkg)
	}
	files := make(message.Map)
	for _, v := range rec.versions {
		for _, b := range v.builds {
			for _, f := range b.Files {
				files[f.Filename] = message.String(f.FileHash)
			}
		}
	}
	return files, nil
}

func (m *MemoryStore) GetProjectVersions(pkg string) (message.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("unknown package %q", pkg)
	}
	vers := make([]string, 0, len(rec.versions))
	for ver := range rec.versions {
		vers = append(vers, ver)
	}
	sort.Strings(vers)
	result := make(message.List, 0, len(vers))
	for _, ver := range vers {
		v := rec.versions[ver]
		var succeeded, failed []message.Value
		for _, b := range v.builds {
			if b.Status {
				succeeded = append(succeeded, message.String(b.ABITag))
			} else {
				failed = append(failed, message.String(b.ABITag))
			}
		}
		result = append(result, message.List{
			message.String(ver),
			message.String(v.skip),
			message.NewSet(succeeded...),
			message.NewSet(failed...),
		})
	}
	return result, nil
}

func (m *MemoryStore) GetProjectFiles(pkg string) (message.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("unknown package %q", pkg)
	}
	vers := make([]string, 0, len(rec.versions))
	for ver := range rec.versions {
		vers = append(vers, ver)
	}
	sort.Strings(vers)
	var result message.List
	for _, ver := range vers {
		for _, b := range rec.versions[ver].builds {
			for _, f := range b.Files {
				result = append(result, message.List{
					message.String(ver),
					message.String(b.ABITag),
					message.String(f.Filename),
					message.Int(f.Filesize),
					message.String(f.FileHash),
				})
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) GetVersionFiles(pkg, ver string) (message.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, err := m.version(pkg, ver)
	if err != nil {
		return nil, err
	}
	var names []message.Value
	for _, b := range v.builds {
		for _, f := range b.Files {
			names = append(names, message.String(f.Filename))
		}
	}
	return message.NewSet(names...), nil
}

func (m *MemoryStore) GetVersionSkip(pkg, ver string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	v, err := m.version(pkg, ver)
	if err != nil {
		return "", err
	}
	return v.skip, nil
}

func (m *MemoryStore) PackageVersionExists(pkg, ver string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	rec, ok := m.packages[pkg]
	if !ok {
		return false, nil
	}
	_, ok = rec.versions[ver]
	return ok, nil
}

func (m *MemoryStore) GetBuildABIs() (message.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	elems := make([]message.Value, len(m.abis))
	for i, abi := range m.abis {
		elems[i] = message.String(abi)
	}
	return message.NewSet(elems...), nil
}

func (m *MemoryStore) GetPyPISerial() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.pypiSerial, nil
}

func (m *MemoryStore) SetPyPISerial(serial int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.pypiSerial = serial
	return nil
}

func (m *MemoryStore) GetStatistics() (message.Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var versions, builds, files int
	for _, rec := range m.packages {
		versions += len(rec.versions)
		for _, v := range rec.versions {
			builds += len(v.builds)
			for _, b := range v.builds {
				files += len(b.Files)
			}
		}
	}
	lastMonth := 0
	cutoff := time.Now().AddDate(0, -1, 0)
	for _, dl := range m.downloads {
		if dl.AccessedAt.After(cutoff) {
			lastMonth++
		}
	}
	return message.Fields{
		{Name: "packages_count", Value: message.Int(len(m.packages))},
		{Name: "versions_count", Value: message.Int(versions)},
		{Name: "builds_count", Value: message.Int(builds)},
		{Name: "files_count", Value: message.Int(files)},
		{Name: "downloads_count", Value: message.Int(len(m.downloads))},
		{Name: "downloads_last_month", Value: message.Int(lastMonth)},
	}, nil
}

func (m *MemoryStore) GetDownloadsRecent() (message.Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	counts := make(map[string]int64)
	for _, dl := range m.downloads {
		if pkg, ok := m.fileOwner[dl.Filename]; ok {
			counts[pkg]++
		}
	}
	pkgs := make([]string, 0, len(counts))
	for pkg := range counts {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	fields := make(message.Fields, len(pkgs))
	for i, pkg := range pkgs {
		fields[i] = message.Field{Name: pkg, Value: message.Int(counts[pkg])}
	}
	return fields, nil
}

func (m *MemoryStore) GetFileDependencies(filename string) (message.Map, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.fileOwner[filename]; !ok {
		return nil, fmt.Errorf("unknown file %q", filename)
	}
	deps, ok := m.fileDeps[filename]
	if !ok {
		return message.Map{}, nil
	}
	return deps, nil
}

// SetFileDependencies attaches dependency metadata to a known file. Test
// fixture hook; the persistent store derives this during build logging.
func (m *MemoryStore) SetFileDependencies(filename string, deps message.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.fileOwner[filename]; !ok {
		return fmt.Errorf("unknown file %q", filename)
	}
	m.fileDeps[filename] = deps
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

// version looks up a version record; the caller holds the lock.
func (m *MemoryStore) version(pkg, ver string) (*versionRecord, error) {
	rec, ok := m.packages[pkg]
	if !ok {
		return nil, fmt.Errorf("unknown package %q", pkg)
	}
	v, ok := rec.versions[ver]
	if !ok {
		return nil, fmt.Errorf("unknown version %s %s", pkg, ver)
	}
	return v, nil
}
