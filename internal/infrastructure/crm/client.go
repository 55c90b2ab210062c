package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of an error answer is read for classification
const maxErrorBody = 64 << 10

type client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a CRM property API client. Every request is bounded by timeout;
// exceeding it surfaces as domain.ErrUpstreamUnavailable.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) ports.CRMClient {
	return NewClientWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTPClient creates a client on a caller-provided http.Client
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) ports.CRMClient {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// propertyPayload is the wire shape of a property definition
type propertyPayload struct {
	Name           string `json:"name"`
	Label          string `json:"label"`
	Type           string `json:"type"`
	FieldType      string `json:"fieldType"`
	GroupName      string `json:"groupName,omitempty"`
	HubspotDefined bool   `json:"hubspotDefined"`
}

func (p propertyPayload) toDomain(objectType string) domain.PropertyDefinition {
	return domain.PropertyDefinition{
		ObjectType: objectType,
		Name:       p.Name,
		Label:      p.Label,
		Type:       p.Type,
		FieldType:  p.FieldType,
		GroupName:  p.GroupName,
		IsBuiltIn:  p.HubspotDefined,
	}
}

type errorPayload struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

func (c *client) ListProperties(ctx context.Context, accessToken, objectType string) ([]domain.PropertyDefinition, error) {
	var body struct {
		Results []propertyPayload `json:"results"`
	}
	path := "/properties/" + url.PathEscape(objectType)
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &body); err != nil {
		return nil, err
	}

	defs := make([]domain.PropertyDefinition, 0, len(body.Results))
	for _, p := range body.Results {
		defs = append(defs, p.toDomain(objectType))
	}

	c.logger.Debug().
		Str("objectType", objectType).
		Int("count", len(defs)).
		Msg("Fetched property catalog")
	return defs, nil
}

func (c *client) GetProperty(ctx context.Context, accessToken, objectType, name string) (*domain.PropertyDefinition, error) {
	var body propertyPayload
	path := "/properties/" + url.PathEscape(objectType) + "/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &body); err != nil {
		return nil, err
	}
	def := body.toDomain(objectType)
	return &def, nil
}

func (c *client) CreateProperty(ctx context.Context, accessToken, objectType string, property domain.PropertyCreate) (*domain.PropertyDefinition, error) {
	var body propertyPayload
	path := "/properties/" + url.PathEscape(objectType)
	if err := c.do(ctx, http.MethodPost, path, accessToken, property, &body); err != nil {
		return nil, err
	}
	def := body.toDomain(objectType)
	if def.Name == "" {
		def.Name = property.Name
		def.Label = property.Label
	}

	c.logger.Info().
		Str("objectType", objectType).
		Str("name", def.Name).
		Msg("Created property")
	return &def, nil
}

// do sends one request and decodes a 2xx JSON answer into out.
// Non-2xx answers come back as *APIError; transport failures wrap domain.ErrUpstreamUnavailable.
func (c *client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("method", method).
			Str("path", path).
			Msg("CRM request failed")
		return fmt.Errorf("%w: %s %s: %w", domain.ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var payload errorPayload
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			apiErr.Message = payload.Message
			apiErr.Category = payload.Category
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Str("message", apiErr.Message).
			Msg("CRM returned non-2xx status")
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %s %s: %w", domain.ErrUpstreamUnavailable, method, path, err)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
