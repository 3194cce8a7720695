package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// defaultBleedCm is applied to print-pdf jobs that do not set bleedCm.
const defaultBleedCm = 0.5

// maxErrorBody caps how much of a failed response ends up in the job error.
const maxErrorBody = 512

// RegisterDelegates registers an HTTP delegate handler for every job type
// with a configured service URL and returns the registered types.
func RegisterDelegates(reg *Registry, urls map[config.JobType]string, client *http.Client, log *zap.Logger) []config.JobType {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}

	builders := map[config.JobType]func(string) HandlerFunc{
		config.JobTypeSceneImage: func(url string) HandlerFunc {
			return Delegate[dto.SceneImagePayload](client, url, nil)
		},
		config.JobTypePrintPDF: func(url string) HandlerFunc {
			return Delegate(client, url, func(p *dto.PrintPDFPayload) {
				if p.BleedCm == nil {
					bleed := defaultBleedCm
					p.BleedCm = &bleed
				}
			})
		},
		config.JobTypePreviewRender: func(url string) HandlerFunc {
			return Delegate[dto.PreviewRenderPayload](client, url, nil)
		},
	}

	var registered []config.JobType
	for _, t := range config.AllowedJobTypes {
		url, ok := urls[t]
		if !ok || url == "" {
			log.Warn("no service configured for job type, not handling it", zap.String("type", string(t)))
			continue
		}
		reg.Register(t, builders[t](url))
		registered = append(registered, t)
		log.Info("registered delegate handler", zap.String("type", string(t)), zap.String("url", url))
	}
	return registered
}

// Delegate returns a handler that decodes the payload as T, applies
// defaults and POSTs it as JSON to url. A 2xx JSON body becomes the job
// result; any other status fails the job.
func Delegate[T any](client *http.Client, url string, defaults func(*T)) HandlerFunc {
	return func(ctx context.Context, payload datatypes.JSON) (any, error) {
		var in T
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		if defaults != nil {
			defaults(&in)
		}

		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", url, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg := strings.TrimSpace(string(raw))
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody]
			}
			return nil, fmt.Errorf("service returned %d: %s", resp.StatusCode, msg)
		}

		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("service returned a non-JSON body")
		}
		return json.RawMessage(raw), nil
	}
}
