package errors

import (
	stderrors "errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeTeamNameEmpty        Code = "TEAM_NAME_EMPTY"
	CodeTeamEventIDEmpty     Code = "TEAM_EVENT_ID_EMPTY"
	CodeTeamCapacityInvalid  Code = "TEAM_CAPACITY_INVALID"
	CodeTeamLeaderEmpty      Code = "TEAM_LEADER_EMPTY"
	CodeInvitationEmptyEmail Code = "INVITATION_EMPTY_EMAIL"
	CodeInvitationEmptyTeam  Code = "INVITATION_EMPTY_TEAM_ID"
	CodeJoinRequestEmptyTeam Code = "JOIN_REQUEST_EMPTY_TEAM_ID"
	CodeRoomIDInvalid        Code = "ROOM_ID_INVALID"
	CodeMessageBodyEmpty     Code = "MESSAGE_BODY_EMPTY"
	CodeMessageBodyTooLong   Code = "MESSAGE_BODY_TOO_LONG"

	// Identity errors
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// Membership state machine errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyActioned    Code = "ALREADY_ACTIONED"
	CodeConflict           Code = "CONFLICT"
	CodeCapacityExceeded   Code = "CAPACITY_EXCEEDED"
	CodeDuplicateRequest   Code = "DUPLICATE_REQUEST"
	CodeAlreadyMember      Code = "ALREADY_MEMBER"
	CodeCannotRemoveLeader Code = "CANNOT_REMOVE_LEADER"

	// Transport errors
	CodeUnavailable Code = "UNAVAILABLE"
	CodeTimeout     Code = "TIMEOUT"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument,
		CodeTeamNameEmpty,
		CodeTeamEventIDEmpty,
		CodeTeamCapacityInvalid,
		CodeTeamLeaderEmpty,
		CodeInvitationEmptyEmail,
		CodeInvitationEmptyTeam,
		CodeJoinRequestEmptyTeam,
		CodeRoomIDInvalid,
		CodeMessageBodyEmpty,
		CodeMessageBodyTooLong:
		return http.StatusBadRequest

	case CodeUnauthorized:
		return http.StatusUnauthorized

	case CodeForbidden, CodeCannotRemoveLeader:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeAlreadyActioned,
		CodeConflict,
		CodeCapacityExceeded,
		CodeDuplicateRequest,
		CodeAlreadyMember:
		return http.StatusConflict

	case CodeUnavailable:
		return http.StatusServiceUnavailable

	case CodeTimeout:
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// HTTPStatusFor maps any error to an HTTP status code.
func HTTPStatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return GetCode(err).HTTPStatus()
}
