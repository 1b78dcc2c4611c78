package errx

import "net/http"

// WrapDocDB wraps a metadata store client error with a consistent status and
// message. The status reflects the upstream failure when known.
func WrapDocDB(err error, status int) error {
	if err == nil {
		return nil
	}
	if status == 0 {
		status = http.StatusBadGateway
	}
	return New(err, status, DocDBErrorMessage)
}

// WrapSandbox wraps a script execution service error.
func WrapSandbox(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, SandboxErrorMessage)
}
