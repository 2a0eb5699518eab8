package common

import "fmt"

// Kind classifies an AppError into the taxonomy the ingestion router, the
// unlock worker pool, and the HTTP surface all key off of when deciding how
// to route a failure.
type Kind string

const (
	KindFileNotFound        Kind = "file_not_found"
	KindInvalidMagic         Kind = "invalid_magic"
	KindUnsupportedFormat    Kind = "unsupported_format"
	KindUnsupportedKeyedMask Kind = "unsupported_keyed_mask"
	KindCryptoFailure        Kind = "crypto_failure"
	KindMetadataParseFailure Kind = "metadata_parse_failure"
	KindArtworkFailure       Kind = "artwork_failure" // never fatal
	KindIO                   Kind = "io_error"
)

// AppError wraps an underlying cause with one of the Kind tags above plus
// the operation and path it occurred on, so callers can make routing
// decisions without string-matching error text.
type AppError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *AppError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewError(kind Kind, op, path string, err error) *AppError {
	return &AppError{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *AppError,
// otherwise returns "" and false.
func KindOf(err error) (Kind, bool) {
	var ae *AppError
	if ok := asAppError(err, &ae); ok {
		return ae.Kind, true
	}
	return "", false
}

func asAppError(err error, target **AppError) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
