// Package inspect parses uploaded APK and IPA binaries to recover the
// bundle identifier, display name, version fields, and icon without
// trusting caller-supplied metadata. Uploaded archives are adversarial
// input: every read is bounded and a malformed archive yields a typed
// error, never a panic.
package inspect

import (
	"fmt"
	"io"
)

// Platforms the inspector understands. They mirror the catalog's
// platform labels so results cross-check against the declared platform.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// PackageInfo is the metadata recovered from a package binary.
type PackageInfo struct {
	BundleID    string
	Name        string
	VersionName string
	VersionCode string
	// Icon is the PNG-encoded app icon, nil when the package carries
	// none or it exceeds the size ceiling.
	Icon []byte
}

// Error is the typed failure returned for unparseable packages. The
// catalog recovers from it by falling back to caller-supplied metadata.
type Error struct {
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("inspect: %s: %v", e.Reason, e.cause)
	}
	return "inspect: " + e.Reason
}

func (e *Error) Unwrap() error { return e.cause }

func failf(cause error, format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...), cause: cause}
}

// Parsing ceilings. An archive may lie about entry sizes, so reads are
// capped with limited readers rather than trusting declared sizes.
const (
	maxZipEntries = 20000
	maxPlistBytes = 4 << 20 // Info.plist
	maxIconBytes  = 8 << 20 // extracted icon
)

// Inspector parses package binaries. It is stateless and safe for
// concurrent use.
type Inspector struct{}

// New creates an Inspector.
func New() *Inspector { return &Inspector{} }

// Inspect reads the package at ra and returns its metadata. The
// declared platform selects the parser; a package whose real format
// does not match fails with *Error.
func (ins *Inspector) Inspect(ra io.ReaderAt, size int64, declaredPlatform string) (*PackageInfo, error) {
	switch declaredPlatform {
	case PlatformAndroid:
		return ins.inspectAPK(ra, size)
	case PlatformIOS:
		return ins.inspectIPA(ra, size)
	default:
		return nil, failf(nil, "unknown platform %q", declaredPlatform)
	}
}
