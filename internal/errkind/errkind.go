// Package errkind classifies copgy failures into the kinds surfaced to the caller.
package errkind

import "errors"

// Kind names the class of a failure.
type Kind string

const (
	Unknown          Kind = "UnknownError"
	ManifestRead     Kind = "ManifestReadError"
	ManifestParse    Kind = "ManifestParseError"
	URLResolution    Kind = "UrlResolutionError"
	Connection       Kind = "ConnectionError"
	SQLValidation    Kind = "SqlValidationError"
	StreamOpen       Kind = "StreamOpenError"
	StreamRead       Kind = "StreamReadError"
	StreamWrite      Kind = "StreamWriteError"
	StreamFinalize   Kind = "StreamFinalizeError"
	CommandExecution Kind = "CommandExecutionError"
)

// Kinded is implemented by errors that know their kind.
type Kinded interface {
	error
	Kind() Kind
}

// Of returns the kind of the first error in err's chain that implements Kinded.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Unknown
}
