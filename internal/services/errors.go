// Package services defines the business logic for profiles, conversations,
// participants, and messages. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Every sentinel carries an apperr code, so handlers can map errors to HTTP
// statuses by code while tests and services compare with errors.Is.
package services

import "github.com/grovechat/grove/pkg/apperr"

var (
	// ErrUnauthorized is returned when the policy evaluator denies a write.
	// Read denials never produce this error: unauthorized reads yield empty
	// results (or not-found for point reads) so row existence is not leaked.
	ErrUnauthorized = apperr.PermissionDenied("not allowed")

	// ErrProfileNotFound indicates the requested profile does not exist.
	ErrProfileNotFound = apperr.NotFound("profile not found")

	// ErrConversationNotFound indicates the conversation does not exist or
	// is not visible to the acting principal.
	ErrConversationNotFound = apperr.NotFound("conversation not found")

	// ErrMessageNotFound indicates the message does not exist or is not
	// visible to the acting principal.
	ErrMessageNotFound = apperr.NotFound("message not found")

	// ErrUsernameTaken is returned when provisioning collides with an
	// existing username.
	ErrUsernameTaken = apperr.AlreadyExists("username already taken")

	// ErrAlreadyParticipant is returned when a membership row for the
	// (conversation, user) pair already exists.
	ErrAlreadyParticipant = apperr.AlreadyExists("already a participant")

	// ErrEmptyContent is returned when a message has no content after
	// trimming.
	ErrEmptyContent = apperr.InvalidArg("content is empty")

	// ErrContentTooLong is returned when message content exceeds the
	// configured rune limit.
	ErrContentTooLong = apperr.InvalidArg("content too long")

	// ErrInvalidStatus is returned for a presence value outside the allowed
	// set.
	ErrInvalidStatus = apperr.InvalidArg("status must be one of: online, away, offline")

	// ErrInvalidMessageType is returned for a message type outside the
	// allowed set.
	ErrInvalidMessageType = apperr.InvalidArg("message type must be one of: text, image, file")

	// ErrInvalidConversationType is returned for a conversation type outside
	// the allowed set.
	ErrInvalidConversationType = apperr.InvalidArg("conversation type must be dm or group")

	// ErrDMMembers is returned when a dm conversation is created with a
	// member list that is not exactly one other principal.
	ErrDMMembers = apperr.InvalidArg("a dm needs exactly one other member")

	// ErrEmptyUsername is returned when provisioning cannot derive a
	// username from the request.
	ErrEmptyUsername = apperr.InvalidArg("username is empty")
)
