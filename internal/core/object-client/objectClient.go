package objectclient

import (
	"path"
	"strings"
)

// Allowed upload extensions and their content types. Image types cover the
// rasters extracted out of PDF and PPTX pages.
var allowedFileTypes = map[string]string{
	".pdf":  "application/pdf",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// PPTXContentType identifies PowerPoint uploads for ingestion dispatch.
const PPTXContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// AllowedExtensions lists the accepted upload extensions.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedFileTypes))
	for ext := range allowedFileTypes {
		out = append(out, ext)
	}
	return out
}

// IsAllowedFile reports whether the filename's extension is accepted.
func IsAllowedFile(filename string) bool {
	_, ok := allowedFileTypes[strings.ToLower(path.Ext(filename))]
	return ok
}

// ContentTypeForFilename maps a filename to its content type by extension,
// falling back to application/octet-stream.
func ContentTypeForFilename(filename string) string {
	if ct, ok := allowedFileTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// BuildKey composes the storage key for a file:
// {prefix}/{user_id}/{thread_id}/{filename}.
func BuildKey(prefix, userID, threadID, filename string) string {
	if prefix != "" {
		return prefix + "/" + userID + "/" + threadID + "/" + filename
	}
	return userID + "/" + threadID + "/" + filename
}
