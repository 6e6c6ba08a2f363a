package extraction

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrCorruptDocument is returned when a document container cannot be opened
// at all. Failures inside an otherwise readable document (a bad page, shape
// or image) are skipped per item instead.
var ErrCorruptDocument = errors.New("corrupt document")

// ErrUnsupportedFormat is returned for filenames whose extension no
// extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// PageImage is one raw embedded image pulled out of a page or slide.
type PageImage struct {
	Data []byte
	Ext  string
}

// PageRecord is the extraction output for a single page (PDF) or slide
// (PPTX): zero-based ordinal, the plain text layer and the embedded images
// in document order. Pages with no text and no images still yield a record.
type PageRecord struct {
	PageNum int
	Text    string
	Images  []PageImage
}

// Extractor parses one binary document format into ordered page records.
type Extractor interface {
	Extract(data []byte) ([]PageRecord, error)
}

// ForFilename picks the extractor for a file based on its extension.
func ForFilename(filename string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return NewPDFExtractor(), nil
	case ".pptx":
		return NewPPTXExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}
