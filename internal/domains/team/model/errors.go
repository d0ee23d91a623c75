package model

import "errors"

// =====================================================
// PREDEFINED ERRORS
// =====================================================

var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamInactive       = errors.New("team is not active")
	ErrTeamLocked         = errors.New("team is locked after repeated auth failures")
	ErrInvalidToken       = errors.New("token verification failed")
	ErrInvalidCredentials = errors.New("invalid dashboard credentials")
	ErrSlugTaken          = errors.New("team slug already in use")
)
