package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ap-procurement/internal/common/httpclient"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// RenderingClient calls the document rendering service over HTTP.
type RenderingClient struct {
	client *httpclient.Client
}

// NewRenderingClient creates a rendering client on top of client.
func NewRenderingClient(client *httpclient.Client) *RenderingClient {
	return &RenderingClient{client: client}
}

type renderRequest struct {
	Template     string            `json:"template"`
	DocumentType string            `json:"document_type"`
	Code         string            `json:"code"`
	EnterpriseID string            `json:"enterprise_id"`
	Document     repository.Record `json:"document"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Render implements service.Renderer.
func (c *RenderingClient) Render(ctx context.Context, rec repository.Record) (string, error) {
	h := rec.Header()
	req := renderRequest{
		Template:     strings.ToLower(string(h.Type)),
		DocumentType: string(h.Type),
		Code:         h.Code,
		EnterpriseID: h.EnterpriseID,
		Document:     rec,
	}

	var resp renderResponse
	if err := c.client.Post(ctx, "/api/v1/render", req, &resp); err != nil {
		return "", fmt.Errorf("render %s: %w", h.Code, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("render %s: empty url in response", h.Code)
	}
	return resp.URL, nil
}
