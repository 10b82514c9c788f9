package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	imageIDPrefix = "img"
	idMaxAttempts = 5
)

// GenerateID returns a new identity of the form <prefix>-<uuid>.
// It retries on collisions using the provided exists function.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}

	for i := 0; i < idMaxAttempts; i++ {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%s-%s", prefix, u.String())
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// GenerateImageID returns a new image identity using the img- prefix.
func GenerateImageID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(imageIDPrefix, exists)
}

// ValidImageID reports whether id has the shape produced by GenerateImageID.
func ValidImageID(id string) bool {
	rest, ok := strings.CutPrefix(id, imageIDPrefix+"-")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
