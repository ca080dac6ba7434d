package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"otchat/model"
)

// classifyError maps SDK errors onto *model.BackendError. Errors without an
// HTTP status stay generic.
func classifyError(vendor string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &model.BackendError{Kind: model.BackendGeneric, Err: err, Message: fmt.Sprintf("%s: %v", vendor, err)}
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		msg := oaErr.Message
		if msg == "" {
			msg = oaErr.Error()
		}
		return model.ClassifyStatus(oaErr.StatusCode, vendor+": "+msg, err)
	}

	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return model.ClassifyStatus(anErr.StatusCode, vendor+": "+anErr.Error(), err)
	}

	var olErr api.StatusError
	if errors.As(err, &olErr) {
		msg := olErr.ErrorMessage
		if msg == "" {
			msg = olErr.Status
		}
		return model.ClassifyStatus(olErr.StatusCode, vendor+": "+msg, err)
	}

	var be *model.BackendError
	if errors.As(err, &be) {
		return be
	}
	return &model.BackendError{Kind: model.BackendGeneric, Err: err, Message: fmt.Sprintf("%s: %v", vendor, err)}
}
