package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/buhlergroup/chatengine/pkg/files"
	"github.com/buhlergroup/chatengine/pkg/observability"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// annotationMapping is one resolved file reference: every literal
// occurrence of Key in the finished text is rewritten using URL.
type annotationMapping struct {
	Key     string
	URL     string
	IsImage bool

	// Plain mappings substitute the bare URL (sandbox-style paths that
	// the model already wrapped in its own markup); non-plain mappings
	// wrap the reference in link or image markdown.
	Plain bool
}

// annotationResolver runs the locate → download → re-upload pipeline for
// the three file reference kinds the decoder encounters, and rewrites the
// finished text once at turn completion. A failed download never fails
// the turn: the mapping is dropped and the literal reference stays.
type annotationResolver struct {
	container files.ContainerFiles
	store     files.FileStore
	blobs     files.BlobStore

	mappings []annotationMapping
	seen     map[string]bool
}

func newAnnotationResolver(container files.ContainerFiles, store files.FileStore, blobs files.BlobStore) *annotationResolver {
	return &annotationResolver{
		container: container,
		store:     store,
		blobs:     blobs,
		seen:      map[string]bool{},
	}
}

// collect processes the annotations attached to a completed message item.
func (r *annotationResolver) collect(ctx context.Context, anns []upstream.FileAnnotation) {
	for _, ann := range anns {
		switch ann.Type {
		case "container_file_citation":
			r.resolveContainerFile(ctx, ann)
		case "file_citation":
			r.resolveStoredFile(ctx, ann)
		default:
			slog.Debug("skipping unknown annotation type", "type", ann.Type)
		}
	}
}

// resolveContainerFile downloads a file the sandboxed execution container
// produced and maps both its sandbox path and bare filename to a durable
// URL.
func (r *annotationResolver) resolveContainerFile(ctx context.Context, ann upstream.FileAnnotation) {
	if ann.Filename == "" || r.seen[ann.Filename] {
		return
	}
	r.seen[ann.Filename] = true

	if r.container == nil || r.blobs == nil {
		return
	}

	// Citations usually carry a file ID; some arrive with only the
	// sandbox path of the file they point at.
	var data []byte
	var err error
	if ann.FileID != "" {
		data, err = r.container.DownloadFile(ctx, ann.ContainerID, ann.FileID)
	} else {
		data, err = r.container.DownloadPath(ctx, ann.ContainerID, "/mnt/data/"+ann.Filename)
	}
	if err != nil {
		observability.AnnotationDownloadsTotal.WithLabelValues("container_file_citation", "error").Inc()
		slog.Warn("container file download failed",
			"container_id", ann.ContainerID, "file_id", ann.FileID,
			"filename", ann.Filename, "error", err)
		return
	}

	url, err := r.upload(ctx, ann.Filename, data)
	if err != nil {
		observability.AnnotationDownloadsTotal.WithLabelValues("container_file_citation", "error").Inc()
		slog.Warn("annotation upload failed", "filename", ann.Filename, "error", err)
		return
	}
	observability.AnnotationDownloadsTotal.WithLabelValues("container_file_citation", "ok").Inc()

	isImage := files.IsImageFilename(ann.Filename)
	// The model references container files as sandbox:/mnt/data/<name>,
	// usually inside markdown it wrote itself, so that key substitutes
	// plainly. The bare filename gets wrapped.
	r.mappings = append(r.mappings,
		annotationMapping{Key: "sandbox:/mnt/data/" + ann.Filename, URL: url, IsImage: isImage, Plain: true},
		annotationMapping{Key: ann.Filename, URL: url, IsImage: isImage},
	)
}

// resolveStoredFile downloads a file-store citation and maps its filename.
func (r *annotationResolver) resolveStoredFile(ctx context.Context, ann upstream.FileAnnotation) {
	if ann.Filename == "" || r.seen[ann.Filename] {
		return
	}
	r.seen[ann.Filename] = true

	if r.store == nil || r.blobs == nil {
		return
	}

	data, err := r.store.Download(ctx, ann.FileID)
	if err != nil {
		observability.AnnotationDownloadsTotal.WithLabelValues("file_citation", "error").Inc()
		slog.Warn("file store download failed", "file_id", ann.FileID, "error", err)
		return
	}

	url, err := r.upload(ctx, ann.Filename, data)
	if err != nil {
		observability.AnnotationDownloadsTotal.WithLabelValues("file_citation", "error").Inc()
		slog.Warn("annotation upload failed", "filename", ann.Filename, "error", err)
		return
	}
	observability.AnnotationDownloadsTotal.WithLabelValues("file_citation", "ok").Inc()

	r.mappings = append(r.mappings, annotationMapping{
		Key:     ann.Filename,
		URL:     url,
		IsImage: files.IsImageFilename(ann.Filename),
	})
}

// resolveGeneratedImage downloads an image-generation result from the
// backend file store, re-uploads it, and returns inline image markup to
// append to the running text. Returns "" when resolution fails.
func (r *annotationResolver) resolveGeneratedImage(ctx context.Context, fileID string) string {
	if r.store == nil || r.blobs == nil {
		return ""
	}

	data, err := r.store.Download(ctx, fileID)
	if err != nil {
		observability.AnnotationDownloadsTotal.WithLabelValues("generated_image", "error").Inc()
		slog.Warn("generated image download failed", "file_id", fileID, "error", err)
		return ""
	}

	name := fmt.Sprintf("generated-%d.png", time.Now().UnixNano())
	url, err := r.upload(ctx, name, data)
	if err != nil {
		observability.AnnotationDownloadsTotal.WithLabelValues("generated_image", "error").Inc()
		slog.Warn("generated image upload failed", "error", err)
		return ""
	}
	observability.AnnotationDownloadsTotal.WithLabelValues("generated_image", "ok").Inc()

	return fmt.Sprintf("\n\n![Generated image](%s)\n\n", url)
}

func (r *annotationResolver) upload(ctx context.Context, name string, data []byte) (string, error) {
	return r.blobs.Upload(ctx, path.Base(name), files.ContentTypeFor(name), data)
}

// rewrite substitutes every collected reference in the finished text.
// Longer keys are handled first via the mapping order: sandbox paths are
// appended before their bare filenames, so a path match never leaves a
// half-rewritten filename behind.
func (r *annotationResolver) rewrite(text string) string {
	for _, m := range r.mappings {
		text = rewriteReference(text, m)
	}
	return text
}

// rewriteReference replaces occurrences of one reference key. Keys that
// appear inside existing markdown link targets substitute plainly so the
// model's own markup keeps working; bare occurrences of filename keys get
// wrapped in image or link markdown by content type.
func rewriteReference(text string, m annotationMapping) string {
	if !strings.Contains(text, m.Key) {
		return text
	}

	// Inside a markdown target: ](key) → ](url).
	text = strings.ReplaceAll(text, "("+m.Key+")", "("+m.URL+")")

	if !strings.Contains(text, m.Key) {
		return text
	}

	if m.Plain {
		return strings.ReplaceAll(text, m.Key, m.URL)
	}
	if m.IsImage {
		return replaceBareKey(text, m.Key, fmt.Sprintf("![%s](%s)", m.Key, m.URL))
	}
	return replaceBareKey(text, m.Key, fmt.Sprintf("[%s](%s)", m.Key, m.URL))
}

// replaceBareKey substitutes standalone occurrences of key, skipping any
// that sit inside a path or URL (preceded by a slash), so a filename key
// never matches the tail of an already-rewritten durable URL.
func replaceBareKey(text, key, repl string) string {
	var b strings.Builder
	for {
		i := strings.Index(text, key)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		if i > 0 && text[i-1] == '/' {
			b.WriteString(key)
		} else {
			b.WriteString(repl)
		}
		text = text[i+len(key):]
	}
}
