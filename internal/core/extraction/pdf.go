package extraction

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// PDFExtractor produces one PageRecord per PDF page: the page's plain-text
// layer plus every embedded raster image on that page.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Extract(data []byte) ([]PageRecord, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	numPages := reader.NumPage()
	imagesByPage := e.extractImages(data)

	records := make([]PageRecord, 0, numPages)
	for i := 1; i <= numPages; i++ {
		rec := PageRecord{PageNum: i - 1}

		page := reader.Page(i)
		if !page.V.IsNull() {
			text, err := page.GetPlainText(nil)
			if err != nil {
				log.Warn().Err(err).Int("page", i).Msg("pdf: text extraction failed, page kept without text")
			} else {
				rec.Text = text
			}
		}

		rec.Images = imagesByPage[i]
		records = append(records, rec)
	}
	return records, nil
}

// extractImages pulls every decodable raster image out of the document and
// groups it by 1-based page number, in object-number order within a page.
// Images that cannot be read are skipped; a wholesale extraction failure
// just means no images, never a failed document.
func (e *PDFExtractor) extractImages(data []byte) map[int][]PageImage {
	out := make(map[int][]PageImage)

	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, model.NewDefaultConfiguration())
	if err != nil {
		log.Warn().Err(err).Msg("pdf: image extraction failed, continuing text-only")
		return out
	}

	for _, byObj := range pages {
		objNrs := make([]int, 0, len(byObj))
		for nr := range byObj {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			img := byObj[nr]
			raw, err := io.ReadAll(img)
			if err != nil {
				log.Warn().Err(err).Int("obj", nr).Msg("pdf: skipping unreadable image")
				continue
			}
			ext := img.FileType
			if ext == "" {
				ext = "png"
			}
			out[img.PageNr] = append(out[img.PageNr], PageImage{Data: raw, Ext: ext})
		}
	}
	return out
}
