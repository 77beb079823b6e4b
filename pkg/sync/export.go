package sync

// ExportFormat is the concrete format a composite entry is converted to.
type ExportFormat struct {
	MimeType  string
	Extension string
}

// ExportTable maps the MIME type of a composite entry to its export format.
type ExportTable map[string]ExportFormat

// DefaultExportTable exports Google Workspace documents to their closest
// office equivalents.
func DefaultExportTable() ExportTable {
	return ExportTable{
		"application/vnd.google-apps.document": {
			MimeType:  "application/pdf",
			Extension: ".pdf",
		},
		"application/vnd.google-apps.spreadsheet": {
			MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Extension: ".xlsx",
		},
		"application/vnd.google-apps.presentation": {
			MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
			Extension: ".pptx",
		},
		"application/vnd.google-apps.drawing": {
			MimeType:  "image/png",
			Extension: ".png",
		},
	}
}

// Lookup returns the export format for `mimeType`.
func (t ExportTable) Lookup(mimeType string) (ExportFormat, bool) {
	format, ok := t[mimeType]
	return format, ok
}
