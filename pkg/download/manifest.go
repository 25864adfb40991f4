package download

import (
	"fmt"

	"howett.net/plist"
)

// The OTA manifest is the property list Apple devices fetch through an
// itms-services URL. The shapes below mirror the documented manifest
// schema; keys use plist tags because they are hyphenated.

type manifestAsset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type manifestMetadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

type manifestItem struct {
	Assets   []manifestAsset  `plist:"assets"`
	Metadata manifestMetadata `plist:"metadata"`
}

type manifest struct {
	Items []manifestItem `plist:"items"`
}

type manifestInput struct {
	PackageURL string
	BundleID   string
	Version    string
	Title      string
	IconURL    string
}

// renderManifest serializes the OTA manifest as XML plist.
func renderManifest(in manifestInput) ([]byte, error) {
	assets := []manifestAsset{
		{Kind: "software-package", URL: in.PackageURL},
	}
	if in.IconURL != "" {
		// display-image is optional; devices show it during install.
		assets = append(assets, manifestAsset{Kind: "display-image", URL: in.IconURL})
	}
	m := manifest{
		Items: []manifestItem{{
			Assets: assets,
			Metadata: manifestMetadata{
				BundleIdentifier: in.BundleID,
				BundleVersion:    in.Version,
				Kind:             "software",
				Title:            in.Title,
			},
		}},
	}
	out, err := plist.MarshalIndent(m, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("marshal ota manifest: %w", err)
	}
	return out, nil
}
