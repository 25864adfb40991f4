package inspect

import (
	"archive/zip"
	"io"
	"regexp"
	"strings"

	"howett.net/plist"
)

var (
	infoPlistRe = regexp.MustCompile(`^Payload/[^/]+\.app/Info\.plist$`)
	appIconRe   = regexp.MustCompile(`^Payload/[^/]+\.app/AppIcon[^/]*\.png$`)
)

// bundlePlist holds the Info.plist keys the catalog cares about.
type bundlePlist struct {
	BundleID     string `plist:"CFBundleIdentifier"`
	ShortVersion string `plist:"CFBundleShortVersionString"`
	BuildVersion string `plist:"CFBundleVersion"`
	DisplayName  string `plist:"CFBundleDisplayName"`
	Name         string `plist:"CFBundleName"`
}

// inspectIPA locates the app bundle's Info.plist inside the IPA archive
// and decodes it. Entry names and sizes come from untrusted input:
// traversal paths are rejected and reads are capped regardless of the
// sizes the archive declares.
func (ins *Inspector) inspectIPA(ra io.ReaderAt, size int64) (*PackageInfo, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, failf(err, "open ipa archive")
	}
	if len(zr.File) > maxZipEntries {
		return nil, failf(nil, "ipa has %d entries, limit is %d", len(zr.File), maxZipEntries)
	}

	var plistFile, iconFile *zip.File
	for _, f := range zr.File {
		if strings.Contains(f.Name, "..") {
			return nil, failf(nil, "ipa entry %q escapes the archive", f.Name)
		}
		switch {
		case plistFile == nil && infoPlistRe.MatchString(f.Name):
			plistFile = f
		case appIconRe.MatchString(f.Name):
			// Prefer the largest icon variant under the ceiling.
			if f.UncompressedSize64 <= maxIconBytes &&
				(iconFile == nil || f.UncompressedSize64 > iconFile.UncompressedSize64) {
				iconFile = f
			}
		}
	}
	if plistFile == nil {
		return nil, failf(nil, "ipa has no Payload/*.app/Info.plist")
	}

	raw, err := readEntry(plistFile, maxPlistBytes)
	if err != nil {
		return nil, failf(err, "read Info.plist")
	}

	var bp bundlePlist
	if _, err := plist.Unmarshal(raw, &bp); err != nil {
		return nil, failf(err, "decode Info.plist")
	}
	if bp.BundleID == "" {
		return nil, failf(nil, "Info.plist has no CFBundleIdentifier")
	}

	info := &PackageInfo{
		BundleID:    bp.BundleID,
		VersionName: bp.ShortVersion,
		VersionCode: bp.BuildVersion,
		Name:        bp.DisplayName,
	}
	if info.Name == "" {
		info.Name = bp.Name
	}

	if iconFile != nil {
		if icon, err := readEntry(iconFile, maxIconBytes); err == nil {
			info.Icon = icon
		}
	}

	return info, nil
}

// readEntry decompresses a zip entry with a hard byte ceiling. The
// declared uncompressed size is not trusted: the limit is enforced on
// the actual decompressed stream.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, failf(nil, "entry %q exceeds %d byte limit", f.Name, limit)
	}
	return data, nil
}
