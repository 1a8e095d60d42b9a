package document

import "errors"

// Sentinel errors for codec failures. Codecs wrap these with
// fmt.Errorf("%w: detail") so callers can classify failures with
// errors.Is while keeping the underlying cause in the message.
var (
	// ErrUnsupported indicates a format the build has no codec for, or
	// a document feature (encryption schemes, exotic encodings) the
	// codec does not handle.
	ErrUnsupported = errors.New("document: unsupported format")

	// ErrCorrupt indicates a file whose structure does not match its
	// detected format: truncated archives, invalid cross-reference
	// tables, zero-length files.
	ErrCorrupt = errors.New("document: corrupt document")

	// ErrIO indicates a failure reading the backing file.
	ErrIO = errors.New("document: read failure")

	// ErrDecode indicates a page that could not be decoded even though
	// the document as a whole opened successfully. Other pages of the
	// same document may still decode.
	ErrDecode = errors.New("document: decode failure")

	// ErrOutOfMemory indicates a page whose decoded size exceeds what
	// the codec is willing to allocate.
	ErrOutOfMemory = errors.New("document: page too large to decode")

	// ErrEncrypted indicates a password-protected document. Opening
	// protected documents is not supported.
	ErrEncrypted = errors.New("document: encrypted document")

	// ErrPageRange indicates a page index outside the document.
	ErrPageRange = errors.New("document: page index out of range")

	// ErrClosed indicates use of a document after Close.
	ErrClosed = errors.New("document: document is closed")
)
