package harvest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// ArchivePath is where a document body is archived:
// <prefix>/<adapter>/<sha256>.<ext>.
func ArchivePath(prefix, adapter string, doc deck.Document) string {
	sum := sha256.Sum256(doc.Body)
	name := hex.EncodeToString(sum[:]) + "." + extension(doc)
	return path.Join(strings.Trim(prefix, "/"), strings.ToLower(adapter), name)
}

func extension(doc deck.Document) string {
	if doc.Headless {
		return "html"
	}
	mediaType, _, err := mime.ParseMediaType(doc.ContentType)
	if err != nil {
		return "bin"
	}
	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return "json"
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return "html"
	case strings.HasPrefix(mediaType, "text/"):
		return "txt"
	default:
		return "bin"
	}
}

func (h *Harvester) archive(ctx context.Context, b *batch, out *Outcome, adapter string, doc deck.Document) {
	if h.deps.Blobs == nil || len(doc.Body) == 0 {
		return
	}
	key := ArchivePath(h.cfg.ArchivePrefix, adapter, doc)
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uri, err := h.deps.Blobs.PutObject(ctx, key, contentType, bytes.NewReader(doc.Body))
	if err != nil {
		b.logger.Warn("archive document failed", zap.String("path", key), zap.Error(err))
		return
	}
	out.Archived = append(out.Archived, uri)
	b.logger.Debug("document archived", zap.String("uri", uri))
}
