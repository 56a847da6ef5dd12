package runner

import "errors"

var (
	// ErrUnknownLocation is returned when a location override names an id
	// the catalog does not have. Nothing is posted or saved.
	ErrUnknownLocation = errors.New("unknown location")

	// ErrNoPlatformSucceeded means no platform accepted the post.
	ErrNoPlatformSucceeded = errors.New("no platform post succeeded")

	// ErrStateNotLoaded is reported in Report.StateError when the state
	// could not be read, so the successful post was not recorded.
	ErrStateNotLoaded = errors.New("state was not loaded, selection not recorded")

	// ErrRunInProgress is returned by RunAsync while another run holds the lock.
	ErrRunInProgress = errors.New("a run is already in progress")
)
