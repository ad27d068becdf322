package client

import (
	"fmt"
	"time"

	"pkgoracle/message"
)

// This file provides one typed method per catalog operation, so producers
// never build argument lists or unpack payload values by hand.

// expect narrows a Do result to the payload type the operation declares.
func expect[T message.Value](v message.Value, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("client: reply payload is %s, want %s", v.Kind(), zero.Kind())
	}
	return typed, nil
}

// unit discards the payload of side-effect-only operations.
func unit(v message.Value, err error) error {
	_, err = expect[message.Null](v, err)
	return err
}

// GetAllPackages returns the set of all known package names.
func (c *Client) GetAllPackages() (message.Set, error) {
	return expect[message.Set](c.Do("ALLPKGS"))
}

// GetAllPackageVersions returns the set of all (package, version) pairs.
func (c *Client) GetAllPackageVersions() (message.Set, error) {
	return expect[message.Set](c.Do("ALLVERS"))
}

// AddNewPackage registers a package, optionally pre-skipped. It reports
// whether the package was newly added.
func (c *Client) AddNewPackage(pkg, skip string) (bool, error) {
	added, err := expect[message.Bool](c.Do("NEWPKG", message.String(pkg), message.String(skip)))
	return bool(added), err
}

// AddNewPackageVersion registers a version of an existing package. It
// reports whether the version was newly added.
func (c *Client) AddNewPackageVersion(pkg, ver string, released time.Time, skip string) (bool, error) {
	added, err := expect[message.Bool](c.Do("NEWVER",
		message.String(pkg), message.String(ver), message.Time(released), message.String(skip)))
	return bool(added), err
}

// SkipPackage marks every version of a package as not-to-be-built.
func (c *Client) SkipPackage(pkg, reason string) error {
	return unit(c.Do("SKIPPKG", message.String(pkg), message.String(reason)))
}

// SkipPackageVersion marks one version as not-to-be-built.
func (c *Client) SkipPackageVersion(pkg, ver, reason string) error {
	return unit(c.Do("SKIPVER", message.String(pkg), message.String(ver), message.String(reason)))
}

// LogDownload records one download of a known wheel file.
func (c *Client) LogDownload(dl message.Download) error {
	return unit(c.Do("LOGDOWNLOAD", dl))
}

// LogBuild records a build attempt and stamps the generated build id back
// onto the caller's record.
func (c *Client) LogBuild(b *message.BuildResult) error {
	id, err := expect[message.Int](c.Do("LOGBUILD", *b))
	if err != nil {
		return err
	}
	b.BuildID = int64(id)
	return nil
}

// DeleteBuild removes all builds of a version together with their files and
// download records.
func (c *Client) DeleteBuild(pkg, ver string) error {
	return unit(c.Do("DELBUILD", message.String(pkg), message.String(ver)))
}

// GetPackageFiles returns filename to hash for all wheels of a package.
func (c *Client) GetPackageFiles(pkg string) (message.Map, error) {
	return expect[message.Map](c.Do("PKGFILES", message.String(pkg)))
}

// GetProjectVersions returns, per version of a package, a List of [version,
// skip reason, set of ABIs built successfully, set of ABIs that failed].
func (c *Client) GetProjectVersions(pkg string) (message.List, error) {
	return expect[message.List](c.Do("PROJVERS", message.String(pkg)))
}

// GetProjectFiles returns, per wheel of a package, a List of [version, ABI
// tag, filename, filesize, filehash].
func (c *Client) GetProjectFiles(pkg string) (message.List, error) {
	return expect[message.List](c.Do("PROJFILES", message.String(pkg)))
}

// GetVersionFiles returns the set of filenames built for a version.
func (c *Client) GetVersionFiles(pkg, ver string) (message.Set, error) {
	return expect[message.Set](c.Do("VERFILES", message.String(pkg), message.String(ver)))
}

// GetVersionSkip returns the reason a version is skipped, or "" if it is
// not.
func (c *Client) GetVersionSkip(pkg, ver string) (string, error) {
	reason, err := expect[message.String](c.Do("GETSKIP", message.String(pkg), message.String(ver)))
	return string(reason), err
}

// PackageVersionExists reports whether the (package, version) pair is
// registered.
func (c *Client) PackageVersionExists(pkg, ver string) (bool, error) {
	exists, err := expect[message.Bool](c.Do("PKGEXISTS", message.String(pkg), message.String(ver)))
	return bool(exists), err
}

// GetBuildABIs returns the set of ABI tags builds should target.
func (c *Client) GetBuildABIs() (message.Set, error) {
	return expect[message.Set](c.Do("GETABIS"))
}

// GetPyPISerial returns the last seen serial of the upstream changelog.
func (c *Client) GetPyPISerial() (int64, error) {
	serial, err := expect[message.Int](c.Do("GETPYPI"))
	return int64(serial), err
}

// SetPyPISerial updates the last seen serial of the upstream changelog.
func (c *Client) SetPyPISerial(serial int64) error {
	return unit(c.Do("SETPYPI", message.Int(serial)))
}

// GetStatistics fetches overall database statistics. The result is built
// fresh on every call from the fields the service returned.
func (c *Client) GetStatistics() (*Statistics, error) {
	fields, err := expect[message.Fields](c.Do("GETSTATS"))
	if err != nil {
		return nil, err
	}
	return newStatistics(fields), nil
}

// GetDownloadsRecent returns recent download counts per package, in the
// order the service reported them.
func (c *Client) GetDownloadsRecent() (message.Fields, error) {
	return expect[message.Fields](c.Do("GETDL"))
}

// GetFileDependencies returns tool name to set of dependencies for a known
// wheel file.
func (c *Client) GetFileDependencies(filename string) (message.Map, error) {
	return expect[message.Map](c.Do("FILEDEPS", message.String(filename)))
}
