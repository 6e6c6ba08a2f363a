package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PPTXExtractor produces one PageRecord per slide: the concatenated text of
// every shape in z-order (text frames, tables, one level of grouped shapes)
// and every picture shape's raw image blob.
type PPTXExtractor struct{}

func NewPPTXExtractor() *PPTXExtractor {
	return &PPTXExtractor{}
}

func (e *PPTXExtractor) Extract(data []byte) ([]PageRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	type slideRef struct {
		num  int
		file *zip.File
	}
	var slides []slideRef
	for _, f := range zr.File {
		files[f.Name] = f
		if m := slideNameRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slideRef{num: n, file: f})
		}
	}
	// Zip entry order is arbitrary; slide order is the numeric suffix.
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	records := make([]PageRecord, 0, len(slides))
	for idx, s := range slides {
		rec := PageRecord{PageNum: idx}

		shapes, err := parseSlide(s.file)
		if err != nil {
			log.Warn().Err(err).Str("slide", s.file.Name).Msg("pptx: skipping unparseable slide")
			records = append(records, rec)
			continue
		}
		rels := loadRelationships(files, s.file.Name)

		var textParts []string
		var images []PageImage
		visit := func(sh shape) {
			if t := sh.text(); t != "" {
				textParts = append(textParts, t)
			}
			if sh.kind == shapePicture {
				if img, ok := resolvePicture(files, rels, sh.pic); ok {
					images = append(images, img)
				}
			}
		}
		for _, sh := range shapes {
			visit(sh)
			if sh.kind == shapeGroup {
				for _, sub := range sh.group {
					visit(sub)
				}
			}
		}

		rec.Text = strings.Join(textParts, "\n\n")
		rec.Images = images
		records = append(records, rec)
	}
	return records, nil
}

type shapeKind int

const (
	shapeTextFrame shapeKind = iota
	shapeTable
	shapePicture
	shapeGroup
)

// shape is a closed variant over the slide shapes this extractor consumes.
// Exactly one of body/table/pic/group is set, per kind.
type shape struct {
	kind  shapeKind
	body  *txBodyXML
	table *tblXML
	pic   *picXML
	group []shape
}

func (s shape) text() string {
	switch s.kind {
	case shapeTextFrame:
		return s.body.text()
	case shapeTable:
		return s.table.text()
	}
	return ""
}

// parseSlide walks the slide XML to its shape tree and decodes the shapes in
// document (z) order.
func parseSlide(f *zip.File) ([]shape, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "spTree" {
			return parseShapeTree(dec, 0)
		}
	}
}

// parseShapeTree decodes the children of a spTree or grpSp element until its
// end tag. Groups recurse exactly one level; groups nested deeper are
// skipped, and any shape that fails to decode is skipped individually.
func parseShapeTree(dec *xml.Decoder, depth int) ([]shape, error) {
	var shapes []shape
	for {
		tok, err := dec.Token()
		if err != nil {
			return shapes, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				var sp spXML
				if err := dec.DecodeElement(&sp, &t); err != nil {
					log.Warn().Err(err).Msg("pptx: skipping malformed shape")
					continue
				}
				if sp.TxBody != nil {
					shapes = append(shapes, shape{kind: shapeTextFrame, body: sp.TxBody})
				}
			case "pic":
				var p picXML
				if err := dec.DecodeElement(&p, &t); err != nil {
					log.Warn().Err(err).Msg("pptx: skipping malformed picture")
					continue
				}
				shapes = append(shapes, shape{kind: shapePicture, pic: &p})
			case "graphicFrame":
				var gf graphicFrameXML
				if err := dec.DecodeElement(&gf, &t); err != nil {
					log.Warn().Err(err).Msg("pptx: skipping malformed graphic frame")
					continue
				}
				if gf.Tbl != nil {
					shapes = append(shapes, shape{kind: shapeTable, table: gf.Tbl})
				}
			case "grpSp":
				if depth >= 1 {
					if err := dec.Skip(); err != nil {
						return shapes, err
					}
					continue
				}
				sub, err := parseShapeTree(dec, depth+1)
				if err != nil {
					return shapes, err
				}
				shapes = append(shapes, shape{kind: shapeGroup, group: sub})
			default:
				if err := dec.Skip(); err != nil {
					return shapes, err
				}
			}
		case xml.EndElement:
			return shapes, nil
		}
	}
}

// loadRelationships maps relationship IDs to zip paths for one slide, so
// picture r:embed references can be resolved to media entries.
func loadRelationships(files map[string]*zip.File, slidePath string) map[string]string {
	relPath := path.Join(path.Dir(slidePath), "_rels", path.Base(slidePath)+".rels")
	f, ok := files[relPath]
	if !ok {
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()

	var rels relationshipsXML
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		log.Warn().Err(err).Str("rels", relPath).Msg("pptx: unreadable relationships")
		return nil
	}
	out := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		out[r.ID] = path.Clean(path.Join(path.Dir(slidePath), r.Target))
	}
	return out
}

func resolvePicture(files map[string]*zip.File, rels map[string]string, p *picXML) (PageImage, bool) {
	target := rels[p.BlipFill.Blip.Embed]
	if target == "" {
		return PageImage{}, false
	}
	f, ok := files[target]
	if !ok {
		log.Warn().Str("target", target).Msg("pptx: picture target missing from archive")
		return PageImage{}, false
	}
	rc, err := f.Open()
	if err != nil {
		return PageImage{}, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("pptx: skipping unreadable image")
		return PageImage{}, false
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(target)), ".")
	if ext == "" {
		ext = "png"
	}
	return PageImage{Data: data, Ext: ext}, true
}

// XML shapes. Tags match local names only, so the a:/p: namespace prefixes
// in slide markup are irrelevant here; the r:embed attribute is matched by
// its full namespace since relationship attributes are always qualified.

type spXML struct {
	TxBody *txBodyXML `xml:"txBody"`
}

type txBodyXML struct {
	Paragraphs []paragraphXML `xml:"p"`
}

func (b *txBodyXML) text() string {
	var parts []string
	for _, p := range b.Paragraphs {
		var sb strings.Builder
		for _, r := range p.Runs {
			sb.WriteString(r.Text)
		}
		if s := sb.String(); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

type paragraphXML struct {
	Runs []runXML `xml:"r"`
}

type runXML struct {
	Text string `xml:"t"`
}

type picXML struct {
	BlipFill blipFillXML `xml:"blipFill"`
}

type blipFillXML struct {
	Blip blipXML `xml:"blip"`
}

type blipXML struct {
	Embed string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships embed,attr"`
}

type graphicFrameXML struct {
	Tbl *tblXML `xml:"graphic>graphicData>tbl"`
}

type tblXML struct {
	Rows []tblRowXML `xml:"tr"`
}

func (t *tblXML) text() string {
	var rows []string
	for _, row := range t.Rows {
		var cells []string
		for _, c := range row.Cells {
			if s := strings.TrimSpace(c.TxBody.text()); s != "" {
				cells = append(cells, s)
			}
		}
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	}
	return strings.Join(rows, "\n")
}

type tblRowXML struct {
	Cells []tblCellXML `xml:"tc"`
}

type tblCellXML struct {
	TxBody txBodyXML `xml:"txBody"`
}

type relationshipsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}
