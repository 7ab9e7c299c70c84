package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultTesseractPath = "tesseract"
	DefaultOCRLanguage   = "eng"

	// tesseract TSV row level for a single word
	tsvWordLevel = 5
)

// ErrNoTextEngine is returned when the OCR binary cannot be found.
var ErrNoTextEngine = errors.New("no text engine available")

type ImageConfig struct {
	TesseractPath string
	Language      string
}

// ImageExtractor recognizes text in raster images with Tesseract.
type ImageExtractor struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
	cfg      ImageConfig
}

func NewImageExtractor(runner CommandRunner, cfg ImageConfig) *ImageExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = DefaultTesseractPath
	}
	if cfg.Language == "" {
		cfg.Language = DefaultOCRLanguage
	}
	return &ImageExtractor{
		runner:   runner,
		lookPath: exec.LookPath,
		cfg:      cfg,
	}
}

// Extract returns recognized words in detection order separated by single
// spaces. An image without text yields "".
func (e *ImageExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := checkDecodable(path); err != nil {
		return "", err
	}

	bin, err := e.lookPath(e.cfg.TesseractPath)
	if err != nil {
		return "", extractionError("no text engine available", errors.Join(ErrNoTextEngine, err))
	}

	out, err := e.runner.Run(ctx, bin, path, "stdout", "-l", e.cfg.Language, "tsv")
	if err != nil {
		return "", extractionError("ocr failed", err)
	}

	return strings.Join(parseTSVWords(out), " "), nil
}

func checkDecodable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return extractionError("cannot open image", err)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return extractionError("image cannot be decoded", err)
	}
	return nil
}

// parseTSVWords keeps word rows with a confidence and non-blank text.
func parseTSVWords(tsv []byte) []string {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(tsv))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) < 12 {
			continue
		}
		level, err := strconv.Atoi(cols[0])
		if err != nil || level != tsvWordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		words = append(words, text)
	}
	return words
}
