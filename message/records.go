package message

import "time"

// FileInfo describes one wheel file produced by a build.
type FileInfo struct {
	Filename    string
	Filesize    int64
	FileHash    string
	PackageTag  string
	PlatformTag string
}

func (FileInfo) Kind() Kind { return KindFile }

// BuildResult records one attempt to build a version of a package. BuildID is
// zero until the build has been logged; the store assigns the identifier and
// the client stamps it back onto the caller's record.
type BuildResult struct {
	Package  string
	Version  string
	ABITag   string
	Status   bool
	Duration time.Duration
	Output   string
	Files    []FileInfo
	BuildID  int64
}

func (BuildResult) Kind() Kind { return KindBuild }

// Download records one download of a wheel file, with the platform details
// reported by the downloader.
type Download struct {
	Filename      string
	AccessedBy    string
	AccessedAt    time.Time
	Arch          string
	DistroName    string
	DistroVersion string
	OSName        string
	OSVersion     string
	PyName        string
	PyVersion     string
}

func (Download) Kind() Kind { return KindDownload }
