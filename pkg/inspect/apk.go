package inspect

import (
	"bytes"
	"image/png"
	"io"
	"strconv"

	"github.com/shogo82148/androidbinary/apk"
)

// inspectAPK reads the binary AndroidManifest.xml and resource table of
// an APK. The androidbinary decoder can panic on crafted input, so the
// whole parse runs under a recover guard.
func (ins *Inspector) inspectAPK(ra io.ReaderAt, size int64) (info *PackageInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = failf(nil, "apk parser panicked: %v", r)
		}
	}()

	pkg, openErr := apk.OpenZipReader(ra, size)
	if openErr != nil {
		return nil, failf(openErr, "open apk")
	}
	defer pkg.Close()

	info = &PackageInfo{BundleID: pkg.PackageName()}
	if info.BundleID == "" {
		return nil, failf(nil, "apk manifest has no package name")
	}

	manifest := pkg.Manifest()
	if code, cerr := manifest.VersionCode.Int32(); cerr == nil {
		info.VersionCode = strconv.FormatInt(int64(code), 10)
	}
	if name, nerr := manifest.VersionName.String(); nerr == nil {
		info.VersionName = name
	}
	if label, lerr := pkg.Label(nil); lerr == nil {
		info.Name = label
	}

	if icon, ierr := pkg.Icon(nil); ierr == nil && icon != nil {
		var buf bytes.Buffer
		if encErr := png.Encode(&buf, icon); encErr == nil && buf.Len() <= maxIconBytes {
			info.Icon = buf.Bytes()
		}
	}

	return info, nil
}
