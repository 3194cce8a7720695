package job

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/middleware"
)

var validate = validator.New()

// payloadValidators holds the shape check for every accepted job type.
var payloadValidators = map[config.JobType]func(json.RawMessage) error{
	config.JobTypeSceneImage:    validatePayload[dto.SceneImagePayload],
	config.JobTypePrintPDF:      validatePayload[dto.PrintPDFPayload],
	config.JobTypePreviewRender: validatePayload[dto.PreviewRenderPayload],
}

func validatePayload[T any](raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Message: "payload must be a JSON object",
			Err:     common.ErrValidation,
		}
	}

	var payload T
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Message: "invalid payload format",
			Err:     common.ErrValidation,
		}
	}

	if err := validate.Struct(payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Message: "payload validation failed",
			Fields:  middleware.FormatValidationErrors(err),
			Err:     common.ErrValidation,
		}
	}

	return nil
}
