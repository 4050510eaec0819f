package server

import "path/filepath"

// mimeTypes is the fixed extension-to-MIME mapping. Unknown extensions map
// to application/octet-stream.
var mimeTypes = map[string]string{
	".bin":   "application/octet-stream",
	".css":   "text/css",
	".gif":   "image/gif",
	".htm":   "text/html",
	".html":  "text/html",
	".jpe":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".ttf":   "font/ttf",
	".txt":   "text/plain",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// mimeType returns the fixed MIME mapping for path's extension, falling
// back to application/octet-stream for anything unlisted.
func mimeType(path string) string {
	ext := filepath.Ext(path)
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}
