package credential

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrArgument is matched by every *ArgumentError.
	ErrArgument = errors.New("invalid argument")

	// ErrConstruction reports that a credential could not be built from a
	// secret that already passed validation.
	ErrConstruction = errors.New("credential construction failed")

	// ErrEmptyToken is returned when an access token is built from an empty value.
	ErrEmptyToken = errors.New("access token is empty")

	// ErrUnknownScheme is returned by the registry for unregistered schemes.
	ErrUnknownScheme = errors.New("unknown credential scheme")

	// ErrTokenAcquisition wraps every failure of a token provider to produce
	// a token, whatever its source.
	ErrTokenAcquisition = errors.New("token acquisition failed")

	// ErrSchemeMismatch is returned when restoring data that belongs to another scheme.
	ErrSchemeMismatch = errors.New("credential scheme mismatch")
)

// ArgumentError reports a required collaborator that was nil.
type ArgumentError struct {
	Name string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %q must not be nil", e.Name)
}

// Is lets errors.Is(err, ErrArgument) match any ArgumentError.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrArgument
}

func notNil(isNil bool, name string) error {
	if isNil {
		return &ArgumentError{Name: name}
	}
	return nil
}

// isNil reports whether v is nil, including a typed nil pointer, map,
// func or chan stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
