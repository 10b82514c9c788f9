package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the image core.
type ErrorKind string

const (
	KindInvalidImage      ErrorKind = "invalid_image"
	KindNotFound          ErrorKind = "not_found"
	KindUnknownPreset     ErrorKind = "unknown_preset"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindTransform         ErrorKind = "transform"
	KindDeletion          ErrorKind = "deletion"
	KindStorageIO         ErrorKind = "storage_io"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidImage      = &Error{Kind: KindInvalidImage}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrUnknownPreset     = &Error{Kind: KindUnknownPreset}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrTransform         = &Error{Kind: KindTransform}
	ErrDeletion          = &Error{Kind: KindDeletion}
	ErrStorageIO         = &Error{Kind: KindStorageIO}
)

// Error is a classified image core failure.
type Error struct {
	Kind ErrorKind
	// Subject is the identity, preset name or key the error is about.
	Subject string
	Message string
	// Transient marks storage failures worth retrying.
	Transient bool
	// Absent marks a not-found caused by an empty identity ("no image").
	Absent bool
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsTransient reports whether err is a storage failure marked transient.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

func InvalidImage(msg string, err error) error {
	return &Error{Kind: KindInvalidImage, Message: msg, Err: err}
}

func NotFound(id string) error {
	return &Error{Kind: KindNotFound, Message: "image not found", Subject: id}
}

// NoImage is the not-found returned for an empty identity.
func NoImage() error {
	return &Error{Kind: KindNotFound, Message: "no image", Absent: true}
}

func UnknownPreset(name string) error {
	return &Error{Kind: KindUnknownPreset, Message: "unknown preset", Subject: name}
}

func UnsupportedFormat(format string) error {
	return &Error{Kind: KindUnsupportedFormat, Message: "unsupported format", Subject: format}
}

func TransformFailed(preset string, err error) error {
	return &Error{Kind: KindTransform, Message: "transform failed", Subject: preset, Err: err}
}

func DeletionFailed(id string, err error) error {
	return &Error{Kind: KindDeletion, Message: "delete failed", Subject: id, Err: err}
}

func StorageIO(key string, transient bool, err error) error {
	return &Error{Kind: KindStorageIO, Message: "storage i/o", Subject: key, Transient: transient, Err: err}
}
