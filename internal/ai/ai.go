// Package ai wraps the Gemini generative model behind a small Generator
// interface so the assistant services can be tested with stubs.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/zalagh/plancher-backend/internal/config"
)

// ErrMissingAPIKey is returned by every call when no API key is configured.
var ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is either text or inline binary data (images).
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Content is one conversation turn.
type Content struct {
	Role  Role
	Parts []Part
}

// UserText is a single-part user turn.
func UserText(s string) Content { return Content{Role: RoleUser, Parts: []Part{{Text: s}}} }

// Generator produces a text answer for a conversation.
type Generator interface {
	Generate(ctx context.Context, contents []Content) (string, error)
}

// Unconfigured is the Generator used when no API key is set.
type Unconfigured struct{}

func (Unconfigured) Generate(context.Context, []Content) (string, error) {
	return "", ErrMissingAPIKey
}

// Gemini calls the Gemini API through the official SDK.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini builds a client from cfg.
func NewGemini(ctx context.Context, cfg config.AIConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{client: client, model: model, timeout: cfg.Timeout}, nil
}

// New returns a Gemini generator, or Unconfigured when cfg has no key.
func New(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	g, err := NewGemini(ctx, cfg)
	if errors.Is(err, ErrMissingAPIKey) {
		return Unconfigured{}, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Generate sends contents and joins the text parts of the first candidate.
func (g *Gemini) Generate(ctx context.Context, contents []Content) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGenai(contents), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return candidateText(resp), nil
}

func toGenai(contents []Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		parts := make([]*genai.Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			if len(p.Data) > 0 {
				parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
		var role genai.Role = genai.RoleUser
		if c.Role == RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var texts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
