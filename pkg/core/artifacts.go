// Package core provides the execution model types for qa-runner.
package core

// Attachment represents an artifact captured during a step attempt
type Attachment struct {
	Name        string `json:"name"`            // Role of the artifact: screenshot, locate_screenshot, hierarchy...
	ContentType string `json:"contentType"`     // MIME type: image/png, application/xml
	Path        string `json:"path"`            // File path on the host
	Error       string `json:"error,omitempty"` // Set when a best-effort capture failed
}

// Attachment names
const (
	AttachmentScreenshot       = "screenshot"
	AttachmentLocateScreenshot = "locate_screenshot"
	AttachmentAfterTap         = "after_tap_screenshot"
	AttachmentAutoScreenshot   = "auto_screenshot"
	AttachmentHierarchy        = "hierarchy"
)

// Content types
const (
	ContentTypePNG = "image/png"
	ContentTypeXML = "application/xml"
)

// NewScreenshotAttachment creates a PNG attachment with the given role name.
func NewScreenshotAttachment(name, path string) Attachment {
	return Attachment{
		Name:        name,
		ContentType: ContentTypePNG,
		Path:        path,
	}
}

// NewHierarchyAttachment creates a UI hierarchy attachment
func NewHierarchyAttachment(path string) Attachment {
	return Attachment{
		Name:        AttachmentHierarchy,
		ContentType: ContentTypeXML,
		Path:        path,
	}
}
