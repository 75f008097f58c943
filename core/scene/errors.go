package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFrozen is returned when a scene is registered after dispatch started.
	ErrRegistryFrozen = errors.New("scene: registry is frozen")
	// ErrNotWizard is returned by Next when the active scene has no steps.
	ErrNotWizard = errors.New("scene: active scene is not a wizard")
	// ErrInvalidScene is returned when registering a nil or unnamed scene.
	ErrInvalidScene = errors.New("scene: scene is nil or has no name")
	// ErrNoSender is returned by Context.Reply when no Sender is configured.
	ErrNoSender = errors.New("scene: no sender configured")
	// ErrNoSession is returned when an update carries no session identifier.
	ErrNoSession = errors.New("scene: update has no session id")
	// ErrLockAcquire is returned when the distributed session lock cannot be taken.
	ErrLockAcquire = errors.New("scene: session lock not acquired")
)

// UnknownSceneError reports a lookup of a scene name that is not registered.
type UnknownSceneError struct {
	Name string
}

func (e *UnknownSceneError) Error() string {
	return fmt.Sprintf("scene: unknown scene %q", e.Name)
}

// Code returns a stable error code for logs.
func (e *UnknownSceneError) Code() string { return "unknown_scene" }

// DuplicateSceneError reports a second registration under the same name.
type DuplicateSceneError struct {
	Name string
}

func (e *DuplicateSceneError) Error() string {
	return fmt.Sprintf("scene: scene %q already registered", e.Name)
}

// Code returns a stable error code for logs.
func (e *DuplicateSceneError) Code() string { return "duplicate_scene" }

// HandlerError wraps a failure of user supplied step, route or hook logic.
type HandlerError struct {
	Scene string
	// Phase is one of "enter", "leave", "route", "step" or "fallback".
	Phase string
	Step  int
	Err   error
}

func (e *HandlerError) Error() string {
	if e.Scene == "" {
		return fmt.Sprintf("scene: %s handler failed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("scene: %s handler of %q failed: %v", e.Phase, e.Scene, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Code returns a stable error code for logs.
func (e *HandlerError) Code() string { return "handler_" + e.Phase }

// isProgrammerError reports errors that must reach the caller instead of
// being absorbed as handler failures.
func isProgrammerError(err error) bool {
	var unknown *UnknownSceneError
	if errors.As(err, &unknown) {
		return true
	}
	var dup *DuplicateSceneError
	if errors.As(err, &dup) {
		return true
	}
	return errors.Is(err, ErrNotWizard) || errors.Is(err, ErrRegistryFrozen)
}
