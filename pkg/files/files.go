package files

import (
	"context"
	"path"
	"strings"
)

// ContainerFiles downloads files from a sandbox execution container,
// addressed either by file ID or by absolute sandbox path.
type ContainerFiles interface {
	DownloadFile(ctx context.Context, containerID, fileID string) ([]byte, error)
	DownloadPath(ctx context.Context, containerID, sandboxPath string) ([]byte, error)
}

// FileStore downloads generated files (image generation results) from the
// backend file store by file ID.
type FileStore interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// BlobStore uploads bytes under a name and returns a durable public URL.
type BlobStore interface {
	Upload(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// ContainerAcquirer provisions a fresh execution container. The stale
// resource retry path acquires a replacement container before restarting
// the turn. The release function tears the container down.
type ContainerAcquirer interface {
	Acquire(ctx context.Context) (url string, release func(), err error)
}

// imageExtensions lists extensions rewritten as inline image markup.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

// IsImageFilename reports whether the filename's extension denotes an
// image. Annotation rewriting uses this to choose inline image markdown
// over a download link.
func IsImageFilename(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// ContentTypeFor returns a content type derived from the filename
// extension, falling back to application/octet-stream.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".txt", ".md":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
