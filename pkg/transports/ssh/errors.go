package ssh

import "errors"

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	// KindAuth indicates the remote host rejected our credentials.
	KindAuth ErrorKind = "auth"

	// KindConnect indicates a network or SSH handshake failure.
	KindConnect ErrorKind = "connect"

	// KindExec indicates command execution failed at the transport level.
	// A non-zero exit code is NOT an exec error; it is returned as data.
	KindExec ErrorKind = "exec"

	// KindTransfer indicates a file upload or download failed.
	KindTransfer ErrorKind = "transfer"
)

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload").
	Op string

	// Host is the remote address the operation targeted.
	Host string

	// Kind classifies the failure.
	Kind ErrorKind

	// Err is the underlying error.
	Err error
}

func (e *TransportError) Error() string {
	if e.Host != "" {
		return e.Op + " " + e.Host + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a credential-rejection failure.
func IsAuthError(err error) bool {
	return errorKind(err) == KindAuth
}

// IsConnectError reports whether err is a network or handshake failure.
func IsConnectError(err error) bool {
	return errorKind(err) == KindConnect
}

// IsExecError reports whether err is a transport-level execution failure.
func IsExecError(err error) bool {
	return errorKind(err) == KindExec
}

// IsTransferError reports whether err is a file transfer failure.
func IsTransferError(err error) bool {
	return errorKind(err) == KindTransfer
}

func errorKind(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
