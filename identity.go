package onboard

import (
	"context"

	"github.com/xraph/onboard/id"
)

// ProfileID identifies a committed identity profile.
type ProfileID = id.ProfileID

// SessionID identifies one user's pass through a flow.
type SessionID = id.SessionID

// IdentityClient is the external identity backend that receives the
// final collected profile. CommitProfile is invoked exactly once per
// successful completion; a failed commit is retryable with the same
// answers.
type IdentityClient interface {
	CommitProfile(ctx context.Context, answers Answers) (ProfileID, error)
}
