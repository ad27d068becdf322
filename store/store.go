// Package store defines the database collaborator consumed by the operation
// catalog.
//
// The Database interface exposes one method per catalog operation; the
// persistent implementation (schema, queries, pooling) lives outside this
// module. MemoryStore is a complete in-process implementation used by the
// worker tests and as a stand-in store for integration runs.
//
// A Database value represents one exclusive connection: a worker owns its
// connection outright and calls it only from its own sequential loop.
package store

import (
	"time"

	"pkgoracle/message"
)

// Database is the store collaborator contract. Every method maps 1:1 to a
// catalog operation; domain failures are reported as ordinary errors, which
// the worker converts into wire-level ERROR replies.
type Database interface {
	// GetAllPackages returns the set of all known package names.
	GetAllPackages() (message.Set, error)

	// GetAllPackageVersions returns the set of all (package, version) pairs,
	// each pair a two-element List.
	GetAllPackageVersions() (message.Set, error)

	// AddNewPackage registers a package, optionally pre-skipped with the
	// given reason. Returns false if the package already exists.
	AddNewPackage(pkg, skip string) (bool, error)

	// AddNewPackageVersion registers a version of an existing package.
	// Returns false if the version already exists.
	AddNewPackageVersion(pkg, ver string, released time.Time, skip string) (bool, error)

	// SkipPackage marks every version of a package as not-to-be-built.
	SkipPackage(pkg, reason string) error

	// SkipPackageVersion marks one version as not-to-be-built.
	SkipPackageVersion(pkg, ver, reason string) error

	// LogDownload records one download of a known wheel file.
	LogDownload(dl message.Download) error

	// LogBuild records a build attempt and returns the generated build id.
	LogBuild(b message.BuildResult) (int64, error)

	// DeleteBuild removes all builds of a version, cascading to their files
	// and those files' download records.
	DeleteBuild(pkg, ver string) error

	// GetPackageFiles returns filename → hash for all wheels of a package.
	GetPackageFiles(pkg string) (message.Map, error)

	// GetProjectVersions returns, per version of a package, a List of
	// [version, skip reason, set of ABIs built successfully, set of ABIs
	// that failed].
	GetProjectVersions(pkg string) (message.List, error)

	// GetProjectFiles returns, per wheel of a package, a List of
	// [version, ABI tag, filename, filesize, filehash].
	GetProjectFiles(pkg string) (message.List, error)

	// GetVersionFiles returns the set of filenames built for a version.
	GetVersionFiles(pkg, ver string) (message.Set, error)

	// GetVersionSkip returns the reason a version is skipped, or "" if it is
	// not.
	GetVersionSkip(pkg, ver string) (string, error)

	// PackageVersionExists reports whether the (package, version) pair is
	// registered.
	PackageVersionExists(pkg, ver string) (bool, error)

	// GetBuildABIs returns the set of ABI tags builds should target.
	GetBuildABIs() (message.Set, error)

	// GetPyPISerial returns the last seen serial of the upstream changelog.
	GetPyPISerial() (int64, error)

	// SetPyPISerial updates the last seen serial of the upstream changelog.
	SetPyPISerial(serial int64) error

	// GetStatistics returns overall database statistics as ordered
	// field/value pairs.
	GetStatistics() (message.Fields, error)

	// GetDownloadsRecent returns recent download counts per package as
	// ordered field/value pairs.
	GetDownloadsRecent() (message.Fields, error)

	// GetFileDependencies returns tool name → set of dependencies for a
	// known wheel file.
	GetFileDependencies(filename string) (message.Map, error)

	// Close releases the connection. The owning worker calls this exactly
	// once, during shutdown, before closing its queue socket.
	Close() error
}
