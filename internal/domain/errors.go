// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested run or file does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates a file path resolving outside the repository root.
var ErrForbidden = errors.New("forbidden")

// ErrValidation indicates a malformed request or entity.
var ErrValidation = errors.New("validation")

// ErrRepoAcquire indicates a repository could not be fetched.
var ErrRepoAcquire = errors.New("repository acquire failed")

// ErrEmptyDossier indicates no files could be admitted into the final-review dossier.
var ErrEmptyDossier = errors.New("empty dossier: no files admitted for final review")
