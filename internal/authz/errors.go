package authz

import "errors"

var (
	// ErrValidation covers malformed keys, names, and reserved-name collisions.
	ErrValidation = errors.New("authz: validation failed")
	// ErrConflict indicates a duplicate key within its scope.
	ErrConflict = errors.New("authz: already exists")
	// ErrReference indicates a grant or assignment pointing outside its
	// expected scope, e.g. an action from a different application.
	ErrReference = errors.New("authz: reference outside scope")
	// ErrNotFound indicates a missing member, application, or role.
	ErrNotFound = errors.New("authz: not found")
	// ErrForbidden indicates the caller may not perform the query.
	ErrForbidden = errors.New("authz: forbidden")
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
