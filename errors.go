package megarray

import "errors"

var (
	// Wiring errors.
	ErrNoStore     = errors.New("megarray: no store configured")
	ErrNoPublisher = errors.New("megarray: no publish executor configured")
	ErrNoGenerator = errors.New("megarray: no content generator configured")

	// Not found errors.
	ErrContentNotFound   = errors.New("megarray: content not found")
	ErrRecurringNotFound = errors.New("megarray: recurring job not found")
	ErrJobNotFound       = errors.New("megarray: job not found")

	// State errors.
	ErrInvalidState      = errors.New("megarray: invalid state transition")
	ErrInvalidSchedule   = errors.New("megarray: invalid schedule")
	ErrNoPendingApproval = errors.New("megarray: no pending approval request")

	// Collaborator errors. These wrap the underlying platform or AI
	// failure; match with errors.Is.
	ErrPublishFailed    = errors.New("megarray: publish execution failed")
	ErrGenerationFailed = errors.New("megarray: content generation failed")
)
