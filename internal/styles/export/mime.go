package export

import (
	"log"
	"mime"
)

// Downloads rely on these being known even on hosts without a complete
// mime.types file.
func init() {
	ensureMimeType(".csv", "text/csv; charset=utf-8")
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("export: failed to register MIME type for %s: %v", ext, err)
	}
}
