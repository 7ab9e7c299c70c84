package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// FileType is the declared kind of an uploaded document.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeAudio FileType = "audio"
	FileTypePDF   FileType = "pdf"
)

var extensionTypes = map[string]FileType{
	".img":  FileTypeImage,
	".png":  FileTypeImage,
	".jpg":  FileTypeImage,
	".jpeg": FileTypeImage,
	".tif":  FileTypeImage,
	".tiff": FileTypeImage,
	".mp3":  FileTypeAudio,
	".wav":  FileTypeAudio,
	".m4a":  FileTypeAudio,
	".pdf":  FileTypePDF,
}

// NormalizeExtension lower-cases ext and ensures a single leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	return "." + strings.TrimLeft(ext, ".")
}

// FileTypeForExtension maps a file extension to its FileType.
func FileTypeForExtension(ext string) (FileType, error) {
	normalized := NormalizeExtension(ext)
	if ft, ok := extensionTypes[normalized]; ok {
		return ft, nil
	}
	return "", &PipelineError{
		Kind:    KindUnsupportedType,
		Message: fmt.Sprintf("unsupported file type: %q", ext),
	}
}

// Chunk is an ordered, bounded slice of extracted text.
type Chunk struct {
	Index int
	Text  string
}

// SourceMetadata describes where an index entry came from.
type SourceMetadata struct {
	FileType  FileType
	FileName  string
	ObjectKey string
	OwnerID   string
}

// IndexEntry is a chunk and its embedding as stored in the vector index.
type IndexEntry struct {
	ID          int64
	DocumentID  string
	ChunkIndex  int
	Content     string
	ContentHash string
	Embedding   []float32
	Source      SourceMetadata
	CreatedAt   time.Time
}

// RetrievedChunk is an index entry returned by a similarity query.
type RetrievedChunk struct {
	ID         int64
	DocumentID string
	ChunkIndex int
	Content    string
	Source     SourceMetadata
	Score      float64
}

// IndexReceipt summarizes one indexing call.
type IndexReceipt struct {
	DocumentID string
	Indexed    int
	Skipped    int
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ChunkFilter narrows a similarity search. The zero value searches the whole index.
type ChunkFilter struct {
	OwnerID string
}
