package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"ibco/native/assets"
)

// AssetManifest is the YAML document listing the assets seeded into the
// registry at first start.
type AssetManifest struct {
	Assets []Asset `yaml:"assets"`
}

// LoadAssetManifest reads and validates a YAML asset manifest. Unknown
// fields are rejected.
func LoadAssetManifest(path string) ([]assets.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAssetManifest(data)
}

// ParseAssetManifest decodes a manifest held in memory.
func ParseAssetManifest(data []byte) ([]assets.Entry, error) {
	var manifest AssetManifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("asset manifest: %w", err)
	}
	return AssetEntries(manifest.Assets)
}
