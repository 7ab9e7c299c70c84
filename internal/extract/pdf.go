package extract

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/phuslu/log"
)

// PDFExtractor reads the text layer of a PDF page by page, mapping glyph
// codes through each font's ToUnicode CMap when one is present.
type PDFExtractor struct {
	conf *model.Configuration
}

func NewPDFExtractor() *PDFExtractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFExtractor{conf: conf}
}

// Extract returns the text of every page in page order joined with "\n".
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", extractionError("cannot open pdf", err)
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, e.conf)
	if err != nil {
		return "", extractionError("invalid or unreadable pdf", err)
	}

	fonts := newFontCache(pdfCtx.XRefTable)
	pages := make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", extractionError("pdf extraction interrupted", err)
		}

		pageDict, _, attrs, err := pdfCtx.PageDict(pageNr, false)
		if err != nil {
			return "", extractionError("cannot read page", err)
		}
		content, err := pdfCtx.PageContent(pageDict, pageNr)
		if errors.Is(err, model.ErrNoContent) {
			pages = append(pages, "")
			continue
		}
		if err != nil {
			return "", extractionError("cannot read page content", err)
		}

		var resources types.Dict
		if attrs != nil {
			resources = attrs.Resources
		}
		pages = append(pages, pageText(content, fonts.page(resources)))
	}

	text := strings.Join(pages, "\n")
	if pdfCtx.Encrypt != nil && strings.TrimSpace(text) == "" {
		return "", extractionError("encrypted pdf yields no text", nil)
	}

	log.Debug().Int("pages", pdfCtx.PageCount).Int("chars", len(text)).Msg("pdf extracted")
	return text, nil
}
