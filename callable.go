package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Callable error statuses, as defined by the Firebase callable protocol.
const (
	statusUnauthenticated    = "UNAUTHENTICATED"
	statusInvalidArgument    = "INVALID_ARGUMENT"
	statusFailedPrecondition = "FAILED_PRECONDITION"
	statusInternal           = "INTERNAL"
)

// CallableError is the error returned to callable clients.
type CallableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *CallableError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

func (e *CallableError) httpStatus() int {
	switch e.Status {
	case statusUnauthenticated:
		return http.StatusUnauthorized
	case statusInvalidArgument, statusFailedPrecondition:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type callableRequest struct {
	Data json.RawMessage `json:"data"`
}

type generateRtcTokenRequest struct {
	ChannelName string `json:"channelName" validate:"required"`
}

type generateRtcTokenResponse struct {
	Token string `json:"token"`
}

var validate = validator.New()

// issueRtcToken mints a token for an authenticated caller. callerUid is
// empty when the request carried no valid ID token.
func (h *Handlers) issueRtcToken(callerUid string, req generateRtcTokenRequest) (generateRtcTokenResponse, error) {
	if callerUid == "" {
		countRtcToken("callable", "unauthenticated")
		return generateRtcTokenResponse{}, &CallableError{Status: statusUnauthenticated, Message: "The function must be called while authenticated."}
	}

	if err := validate.Struct(req); err != nil {
		countRtcToken("callable", "invalid")
		return generateRtcTokenResponse{}, &CallableError{Status: statusInvalidArgument, Message: "The function must be called with a channelName."}
	}

	token, err := h.minter.Mint(req.ChannelName)
	if errors.Is(err, ErrCredentialsMissing) {
		countRtcToken("callable", "unconfigured")
		return generateRtcTokenResponse{}, &CallableError{Status: statusFailedPrecondition, Message: "RTC credentials are not configured on the server."}
	}
	if err != nil {
		h.logger.Error().Err(err).Str("caller", callerUid).Str("channel", req.ChannelName).Msg("failed to mint rtc token")
		countRtcToken("callable", "error")
		return generateRtcTokenResponse{}, &CallableError{Status: statusInternal, Message: "Could not generate the token."}
	}

	countRtcToken("callable", "ok")
	return generateRtcTokenResponse{Token: token}, nil
}

// callerUid returns the uid of a verified ID token, or "" if the request
// is anonymous or the token does not verify.
func (h *Handlers) callerUid(ctx context.Context, c *gin.Context) string {
	idToken, err := jwtFromHeader(c)
	if err != nil || h.tokenVerifier == nil {
		return ""
	}

	token, err := h.tokenVerifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		h.logger.Warn().Err(err).Msg("callable id token rejected")
		return ""
	}
	return token.UID
}

func (h *Handlers) generateRtcToken(c *gin.Context) {
	ctx := c.Request.Context()
	uid := h.callerUid(ctx, c)

	// The body is only read for authenticated callers.
	var req generateRtcTokenRequest
	if uid != "" {
		var envelope callableRequest
		if err := c.ShouldBindJSON(&envelope); err != nil {
			respondCallableError(c, &CallableError{Status: statusInvalidArgument, Message: "Request body must be a JSON object with a data field."})
			return
		}
		if len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, &req); err != nil {
				respondCallableError(c, &CallableError{Status: statusInvalidArgument, Message: "The function must be called with a channelName."})
				return
			}
		}
	}

	resp, err := h.issueRtcToken(uid, req)
	if err != nil {
		var callableErr *CallableError
		if !errors.As(err, &callableErr) {
			callableErr = &CallableError{Status: statusInternal, Message: "INTERNAL"}
		}
		respondCallableError(c, callableErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": resp})
}

func respondCallableError(c *gin.Context, err *CallableError) {
	c.AbortWithStatusJSON(err.httpStatus(), gin.H{"error": err})
}
