package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

// resolveUserID picks the caller identity. With auth on, the token wins
// and a different userId in the request is rejected.
func resolveUserID(c *gin.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	authed := middleware.AuthUserID(c)
	if authed == "" {
		if requested == "" {
			return "", appErr.Validation("userId is required")
		}
		return requested, nil
	}
	if requested != "" && requested != authed {
		return "", appErr.ErrForbidden
	}
	return authed, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErr.Validation("invalid conversation id")
	}
	return id, nil
}

// flexibleID accepts a JSON number or a numeric string.
type flexibleID struct {
	Value *int64
}

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		f.Value = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	id, err := parseID(s)
	if err != nil {
		return fmt.Errorf("conversationId: %w", err)
	}
	f.Value = &id
	return nil
}

func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if appErr.IsValidation(err) {
			return err
		}
		return appErr.Validation("invalid request body")
	}
	return nil
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", middleware.AuthUserID(c)),
	)
	_ = c.Error(err)
	switch {
	case appErr.IsValidation(err):
		logger.Info("request rejected", zap.Error(err))
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, validationMessage(err))
	case errors.Is(err, appErr.ErrJobNotFound):
		response.Error(c, http.StatusNotFound, errcode.ErrJobNotFound, "job not found")
	case appErr.IsNotFound(err):
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, http.StatusForbidden, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrQueueUnavailable):
		logger.Error("queue unavailable", zap.Error(err))
		response.Error(c, http.StatusServiceUnavailable, errcode.ErrQueueUnavailable, "queue unavailable")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrProcessing, "failed to process request")
	}
}

func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}

var errConversationNotFound = fmt.Errorf("conversation %w", appErr.ErrNotFound)
