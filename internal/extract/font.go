package extract

import (
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/phuslu/log"
)

// maxCMapRange bounds a single bfrange so a corrupt CMap cannot allocate
// without limit.
const maxCMapRange = 0xFFFF

// pageFonts maps resource names (without the leading slash) to fonts.
type pageFonts map[string]*font

// font turns the bytes of a shown string into text.
type font struct {
	// composite is set for Type0 fonts, whose codes are glyph ids
	// rather than characters.
	composite bool
	codeLen   int
	toUnicode map[uint32]string
}

// decode maps raw string bytes to text. A nil font or a simple font
// without a ToUnicode CMap falls back to decodeText. Codes of a composite
// font that has no mapping are dropped.
func (f *font) decode(raw []byte) string {
	if f == nil || (f.toUnicode == nil && !f.composite) {
		return decodeText(raw)
	}
	if f.toUnicode == nil {
		return ""
	}

	n := f.codeLen
	if n <= 0 {
		n = 1
		if f.composite {
			n = 2
		}
	}

	var out []rune
	for i := 0; i+n <= len(raw); i += n {
		code := codeValue(raw[i : i+n])
		if s, ok := f.toUnicode[code]; ok {
			out = append(out, []rune(s)...)
			continue
		}
		if !f.composite && code >= 0x20 && code < 0x7F {
			out = append(out, rune(code))
		}
	}
	return string(out)
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// utf16Text decodes a CMap destination string. Odd-length values are not
// UTF-16 and go through decodeText.
func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		return decodeText(b)
	}
	return string(utf16.Decode(utf16Units(b)))
}

func utf16Units(b []byte) []uint16 {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return u
}

// arrayToken groups the elements of a [...] operand.
type arrayToken struct {
	token
	items []token
}

// parseToUnicode reads the codespacerange, bfchar and bfrange sections of
// a ToUnicode CMap. It returns the code width in bytes (0 when the CMap
// declares no codespace) and the code to text mapping.
func parseToUnicode(data []byte) (int, map[uint32]string) {
	var (
		lx      = newLexer(data)
		operand []arrayToken
		items   []token
		inArray bool
		codeLen int
		mapping = make(map[uint32]string)
	)

	for {
		tok, ok := lx.next()
		if !ok {
			break
		}

		switch tok.kind {
		case tokArrayStart:
			inArray = true
			items = nil
			continue
		case tokArrayEnd:
			inArray = false
			operand = append(operand, arrayToken{token: token{kind: tokArrayEnd}, items: items})
			continue
		}
		if inArray {
			items = append(items, tok)
			continue
		}
		if tok.kind != tokOperator {
			operand = append(operand, arrayToken{token: tok})
			continue
		}

		switch tok.text {
		case "endcodespacerange":
			if codeLen == 0 && len(operand) > 0 && operand[0].kind == tokString {
				codeLen = len(operand[0].raw)
			}
		case "endbfchar":
			for i := 0; i+1 < len(operand); i += 2 {
				src, dst := operand[i], operand[i+1]
				if src.kind == tokString && dst.kind == tokString {
					mapping[codeValue(src.raw)] = utf16Text(dst.raw)
					if codeLen == 0 {
						codeLen = len(src.raw)
					}
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(operand); i += 3 {
				addRange(mapping, operand[i], operand[i+1], operand[i+2])
				if codeLen == 0 && operand[i].kind == tokString {
					codeLen = len(operand[i].raw)
				}
			}
		}
		operand = operand[:0]
	}

	return codeLen, mapping
}

func addRange(mapping map[uint32]string, lo, hi, dst arrayToken) {
	if lo.kind != tokString || hi.kind != tokString {
		return
	}
	first, last := codeValue(lo.raw), codeValue(hi.raw)
	if last < first || last-first > maxCMapRange {
		return
	}

	switch dst.kind {
	case tokString:
		if len(dst.raw)%2 == 1 || len(dst.raw) == 0 {
			return
		}
		base := utf16Units(dst.raw)
		for code := first; code <= last; code++ {
			units := append([]uint16(nil), base...)
			units[len(units)-1] += uint16(code - first)
			mapping[code] = string(utf16.Decode(units))
		}
	case tokArrayEnd:
		for i, item := range dst.items {
			code := first + uint32(i)
			if code > last {
				break
			}
			if item.kind == tokString {
				mapping[code] = utf16Text(item.raw)
			}
		}
	}
}

// fontCache loads each font object of a document once.
type fontCache struct {
	xref  *model.XRefTable
	fonts map[types.IndirectRef]*font
}

func newFontCache(xref *model.XRefTable) *fontCache {
	return &fontCache{xref: xref, fonts: make(map[types.IndirectRef]*font)}
}

// page resolves the Font entry of a page resource dictionary.
func (c *fontCache) page(resources types.Dict) pageFonts {
	fonts := make(pageFonts)
	if resources == nil {
		return fonts
	}
	o, found := resources.Find("Font")
	if !found {
		return fonts
	}
	dict, err := c.xref.DereferenceDict(o)
	if err != nil || dict == nil {
		return fonts
	}

	for name, obj := range dict {
		ref, isRef := obj.(types.IndirectRef)
		if isRef {
			if f, ok := c.fonts[ref]; ok {
				fonts[name] = f
				continue
			}
		}
		f := c.load(name, obj)
		if isRef {
			c.fonts[ref] = f
		}
		fonts[name] = f
	}
	return fonts
}

func (c *fontCache) load(name string, obj types.Object) *font {
	d, err := c.xref.DereferenceDict(obj)
	if err != nil || d == nil {
		return nil
	}

	f := &font{}
	if st := d.Subtype(); st != nil && *st == "Type0" {
		f.composite = true
	}

	o, found := d.Find("ToUnicode")
	if !found {
		return f
	}
	// a name such as /Identity-H carries no mapping
	if _, isName := o.(types.Name); isName {
		return f
	}
	sd, _, err := c.xref.DereferenceStreamDict(o)
	if err != nil || sd == nil {
		log.Debug().Err(err).Str("font", name).Msg("pdf font has unreadable ToUnicode")
		return f
	}
	if err := sd.Decode(); err != nil {
		log.Debug().Err(err).Str("font", name).Msg("pdf font ToUnicode decode failed")
		return f
	}
	f.codeLen, f.toUnicode = parseToUnicode(sd.Content)
	if len(f.toUnicode) == 0 {
		f.toUnicode = nil
	}
	return f
}
