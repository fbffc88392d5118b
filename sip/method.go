package sip

import (
	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/util"
)

// RequestMethod represents a SIP request method.
type RequestMethod string

// Request method constants.
const (
	RequestMethodAck       RequestMethod = "ACK"
	RequestMethodBye       RequestMethod = "BYE"
	RequestMethodCancel    RequestMethod = "CANCEL"
	RequestMethodInfo      RequestMethod = "INFO"
	RequestMethodInvite    RequestMethod = "INVITE"
	RequestMethodMessage   RequestMethod = "MESSAGE"
	RequestMethodNotify    RequestMethod = "NOTIFY"
	RequestMethodOptions   RequestMethod = "OPTIONS"
	RequestMethodPrack     RequestMethod = "PRACK"
	RequestMethodPublish   RequestMethod = "PUBLISH"
	RequestMethodRefer     RequestMethod = "REFER"
	RequestMethodRegister  RequestMethod = "REGISTER"
	RequestMethodSubscribe RequestMethod = "SUBSCRIBE"
	RequestMethodUpdate    RequestMethod = "UPDATE"
)

// ToUpper returns the upper cased method.
func (m RequestMethod) ToUpper() RequestMethod { return util.UCase(m) }

// IsValid checks whether the method is a syntactically valid token.
func (m RequestMethod) IsValid() bool { return grammar.IsToken(m) }

// Equal compares methods case-insensitively.
func (m RequestMethod) Equal(other RequestMethod) bool { return util.EqFold(m, other) }

// ResponseStatus represents a SIP response status code.
type ResponseStatus uint16

// Response status constants used by the library.
const (
	ResponseStatusTrying                      ResponseStatus = 100
	ResponseStatusRinging                     ResponseStatus = 180
	ResponseStatusOK                          ResponseStatus = 200
	ResponseStatusAccepted                    ResponseStatus = 202
	ResponseStatusBadRequest                  ResponseStatus = 400
	ResponseStatusUnauthorized                ResponseStatus = 401
	ResponseStatusForbidden                   ResponseStatus = 403
	ResponseStatusNotFound                    ResponseStatus = 404
	ResponseStatusMethodNotAllowed            ResponseStatus = 405
	ResponseStatusProxyAuthenticationRequired ResponseStatus = 407
	ResponseStatusRequestTimeout              ResponseStatus = 408
	ResponseStatusTemporarilyUnavailable      ResponseStatus = 480
	ResponseStatusBusyHere                    ResponseStatus = 486
	ResponseStatusServerInternalError         ResponseStatus = 500
	ResponseStatusNotImplemented              ResponseStatus = 501
	ResponseStatusServiceUnavailable          ResponseStatus = 503
	ResponseStatusDecline                     ResponseStatus = 603
)

var statusReasons = map[ResponseStatus]string{
	ResponseStatusTrying:                      "Trying",
	ResponseStatusRinging:                     "Ringing",
	ResponseStatusOK:                          "OK",
	ResponseStatusAccepted:                    "Accepted",
	ResponseStatusBadRequest:                  "Bad Request",
	ResponseStatusUnauthorized:                "Unauthorized",
	ResponseStatusForbidden:                   "Forbidden",
	ResponseStatusNotFound:                    "Not Found",
	ResponseStatusMethodNotAllowed:            "Method Not Allowed",
	ResponseStatusProxyAuthenticationRequired: "Proxy Authentication Required",
	ResponseStatusRequestTimeout:              "Request Timeout",
	ResponseStatusTemporarilyUnavailable:      "Temporarily Unavailable",
	ResponseStatusBusyHere:                    "Busy Here",
	ResponseStatusServerInternalError:         "Server Internal Error",
	ResponseStatusNotImplemented:              "Not Implemented",
	ResponseStatusServiceUnavailable:          "Service Unavailable",
	ResponseStatusDecline:                     "Decline",
}

// Reason returns the default reason phrase of the status.
func (s ResponseStatus) Reason() string {
	if r, ok := statusReasons[s]; ok {
		return r
	}
	return "Unknown"
}

// IsValid checks whether the status is within 100-699.
func (s ResponseStatus) IsValid() bool { return s >= 100 && s <= 699 }

// IsProvisional reports whether the status is 1xx.
func (s ResponseStatus) IsProvisional() bool { return s >= 100 && s < 200 }
