package blobstore

import (
	"fmt"
	"path"
	"strings"
)

const (
	imagesPrefix      = "images"
	fingerprintKeyLen = 12
)

// RootPrefix is the key prefix every image object lives under.
const RootPrefix = imagesPrefix + "/"

// OriginalKey is the object key of an image's original bytes.
func OriginalKey(imageID string) string {
	return path.Join(imagesPrefix, imageID, "original")
}

// DerivativePrefix is the key prefix holding every derivative of an image.
func DerivativePrefix(imageID string) string {
	return path.Join(imagesPrefix, imageID, "derivatives") + "/"
}

// ImagePrefix is the key prefix holding all objects of an image.
func ImagePrefix(imageID string) string {
	return path.Join(imagesPrefix, imageID) + "/"
}

// DerivativeKey returns the object key of one preset rendition. The key embeds
// the preset fingerprint so a changed preset never overwrites served bytes.
func DerivativeKey(imageID, preset, fingerprint, ext string) string {
	fp := fingerprint
	if len(fp) > fingerprintKeyLen {
		fp = fp[:fingerprintKeyLen]
	}
	return DerivativePrefix(imageID) + fmt.Sprintf("%s-%s.%s", preset, fp, ext)
}

// IsOriginalKey reports whether key holds an original rather than a derivative.
func IsOriginalKey(key string) bool {
	id, ok := ImageIDFromKey(key)
	return ok && key == OriginalKey(id)
}

// ImageIDFromKey extracts the image identity from any key under images/.
func ImageIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, RootPrefix)
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func validateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("blob key must be relative")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid blob key")
		}
	}
	return nil
}
