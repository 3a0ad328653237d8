package rtc

import "context"

// TokenProvider mints transport tokens for the third-party audio/video SDK.
// Token minting and the media transport itself are external collaborators;
// this contract is the only coupling the billing backend has to them.
type TokenProvider interface {
	MintRoomToken(ctx context.Context, callID, userID string) (string, error)
}

// StaticTokenProvider returns a fixed token. Placeholder wiring for
// environments without a media provider (local, tests).
type StaticTokenProvider struct {
	Token string
}

func (p StaticTokenProvider) MintRoomToken(ctx context.Context, callID, userID string) (string, error) {
	return p.Token, nil
}
