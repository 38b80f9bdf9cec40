// Package fault defines the error taxonomy shared by the transcript pipeline.
//
// The pipeline distinguishes five failure classes with different handling
// policies:
//
//   - [ErrOffline]: no connectivity — short-circuit retries, enqueue to the outbox.
//   - Transient errors ([Transient]): retried with backoff; enqueued on exhaustion.
//   - [ErrPermission]: fatal to listening only; the session stays resumable.
//   - Service errors ([Service]): the remote call returned a well-formed
//     failure; non-fatal, the utterance is still recorded with whatever
//     data succeeded.
//   - [ErrEmptyText]: whitespace-only input reached a flush or translate call;
//     silently ignored, no record created.
package fault

import (
	"errors"
	"fmt"
)

// ErrOffline indicates the process currently considers itself offline.
var ErrOffline = errors.New("offline")

// ErrPermission indicates the recognition engine denied access.
var ErrPermission = errors.New("permission denied")

// ErrEmptyText indicates empty or whitespace-only text reached an operation
// that requires content.
var ErrEmptyText = errors.New("empty text")

// Transient marks a network failure that is worth retrying.
type Transient struct {
	Op  string
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("transient: %s: %v", e.Op, e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

// Service marks a well-formed failure returned by a remote service
// (translation, AI grouping). Callers record what succeeded and surface a
// dismissable notice rather than dropping data.
type Service struct {
	Provider string
	Err      error
}

func (e *Service) Error() string { return fmt.Sprintf("service %s: %v", e.Provider, e.Err) }
func (e *Service) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable: either a [Transient] wrapper
// or [ErrOffline].
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t) || errors.Is(err, ErrOffline)
}

// IsService reports whether err is a remote-service failure.
func IsService(err error) bool {
	var s *Service
	return errors.As(err, &s)
}
