package respond

import (
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

// Error is the uniform failure envelope: success is always false and the
// message is safe to show to the user.
type Error struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// OK sends a 200 OK JSON response with the given payload. Payloads carry
// their own success flag so each endpoint keeps its documented shape.
func OK(c *ginext.Context, payload interface{}) {
	JSON(c, http.StatusOK, payload)
}

// Fail sends an error JSON response with the specified HTTP status code.
func Fail(c *ginext.Context, status int, err error) {
	JSON(c, status, Error{Success: false, Message: err.Error()})
}

// Stream writes raw bytes from the reader with the given content type.
func Stream(c *ginext.Context, status int, contentType string, size int64, reader io.Reader) {
	c.DataFromReader(status, size, contentType, reader, nil)
}

// Attachment streams bytes with a Content-Disposition header so browsers
// download the response under the suggested filename.
func Attachment(c *ginext.Context, contentType, filename string, reader io.Reader) {
	headers := map[string]string{
		"Content-Disposition": `attachment; filename="` + filename + `"`,
	}
	c.DataFromReader(http.StatusOK, -1, contentType, reader, headers)
}
