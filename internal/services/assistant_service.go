// Package services – AssistantService
//
// This file implements the AI assistant endpoints on top of ai.Generator:
//
//   - Vision: plan images are stored under planjpg/ and sent to the model
//     with formatting rules; a {"volume_m3": n} line in the answer yields a
//     cost estimate at the fixed price per m³.
//   - Chat: the public assistant. A fixed French preamble (price, format
//     rules), an optional vision summary, and the best-matching knowledge
//     snippets are sent as the first user turn, followed by the history.
//   - AdminChat: the last admin message is classified by intent.Detect.
//     Quote-link and notify intents are answered by the server itself (PDF
//     generation, links, sector broadcast); anything else goes to the model
//     with a business preamble and live database statistics.
//
// Model failures are wrapped in ErrAIFailed; a missing API key surfaces as
// ErrMissingAPIKey before any work is done.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/ai"
	"github.com/zalagh/plancher-backend/internal/intent"
	"github.com/zalagh/plancher-backend/internal/knowledge"
	"github.com/zalagh/plancher-backend/internal/quote"
	"github.com/zalagh/plancher-backend/internal/repo"
	"github.com/zalagh/plancher-backend/internal/storage"
)

const (
	// MaxVisionImages is the most images one vision request may carry.
	MaxVisionImages = 8

	// DefaultVisionPrompt is used when the caller sends no prompt.
	DefaultVisionPrompt = "Analyse ces plans béton (images) en français et extrais dimensions, épaisseur, surfaces, volume total en m3 et hypothèses."

	visionRules = "\nRègles de formatage: réponds en français, commence par un court titre en <strong>, puis liste à puces; insère des sauts de ligne <br/> entre sections; mets les nombres clés en <strong>. Si possible, fournis UNE ligne JSON: {\"volume_m3\": nombre}."

	chatPreamble = "Tu es un assistant expert pour Zalagh Plancher (entreprise de béton). Prix fixe: 150 DH par m³. Réponds en français et applique ces règles de formatage: \n- Titre court en <strong>\n- Réponse en listes à puces si possible\n- Sauts de ligne avec <br/> entre sections\n- Mots/nombres clés en <strong>\n- Si calcul de volume: ajoute UNE ligne JSON: {\"volume_m3\": nombre}\nNe change jamais le prix par m³."

	adminPreambleFormat = "Tu es l'assistant business de Zalagh Plancher. Adresse-toi à l'administrateur %s %s. Réponds en français et applique ces règles: \n- Titre court en <strong>\n- Listes à puces quand pertinent\n- Sauts de ligne avec <br/>\n- Mots/nombres clés en <strong>\n- Quand on te demande des LIENS DEVIS: retourne aussi un fragment HTML avec des <a> cliquables.\n- Si on demande d'envoyer les devis au service finance: répond OK et propose une période; le serveur s'occupera de la notification. %s"

	noQuotesText = "Aucun devis trouvé pour cette période."
	autoFooter   = `<div style="margin-top:6px;color:#64748b;">Message automatique: liens de devis envoyés par l'assistant admin.</div>`

	knowledgeSnippets = 3
	recentDemandes    = 10
	statsMonths       = 6
)

// ChatMessage is one turn of a conversation sent by a client. Role
// "assistant" (or "model") is the model; anything else is the user.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VisionContext is a previous vision result carried into a chat.
type VisionContext struct {
	Text            string   `json:"text"`
	VolumeM3        *float64 `json:"volume_m3"`
	PricePerM3      *float64 `json:"price_per_m3"`
	EstimatedCostDH *float64 `json:"estimated_cost_dh"`
}

// Image is an uploaded plan image.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// VisionResult is the answer to a vision request.
type VisionResult struct {
	Text            string   `json:"text"`
	VolumeM3        *float64 `json:"volume_m3"`
	PricePerM3      float64  `json:"price_per_m3"`
	EstimatedCostDH *float64 `json:"estimated_cost_dh"`
	PlanJPGs        []string `json:"plan_jpgs"`
	PlanJPG         string   `json:"plan_jpg"`
}

// Reply is an assistant answer. HTML is set when the server built the answer
// itself; Recipients is set when a broadcast was sent.
type Reply struct {
	Text       string `json:"text"`
	HTML       string `json:"html,omitempty"`
	Intent     string `json:"intent,omitempty"`
	Recipients *int   `json:"recipients,omitempty"`
}

// AssistantService answers the three assistant endpoints.
type AssistantService struct {
	// DB is the GORM handle used for statistics.
	DB *gorm.DB
	// AI is the generative model.
	AI ai.Generator
	// Files stores uploaded plan images.
	Files *storage.Layout
	// Knowledge grounds the public chat; nil disables it.
	Knowledge knowledge.Index
	// Demandes generates quotes for link requests.
	Demandes *DemandeService
	// Notifications delivers admin broadcasts.
	Notifications *NotificationService

	now func() time.Time
}

func (s *AssistantService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *AssistantService) ready() error {
	if s.AI == nil {
		return ErrMissingAPIKey
	}
	if _, ok := s.AI.(ai.Unconfigured); ok {
		return ErrMissingAPIKey
	}
	return nil
}

func (s *AssistantService) generate(ctx context.Context, kind string, contents []ai.Content) (string, error) {
	text, err := s.AI.Generate(ctx, contents)
	assistantCalls.WithLabelValues(kind, outcome(err)).Inc()
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, ai.ErrMissingAPIKey):
		return "", ErrMissingAPIKey
	default:
		return "", fmt.Errorf("%w: %v", ErrAIFailed, err)
	}
}

// Vision stores the images as plans and asks the model to analyse them.
func (s *AssistantService) Vision(ctx context.Context, prompt string, images []Image) (*VisionResult, error) {
	ctx, span := otel.Tracer("services/AssistantService").Start(ctx, "Vision",
		trace.WithAttributes(attribute.Int("images", len(images))),
	)
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}
	switch {
	case len(images) == 0:
		return nil, invalid("at least one image required")
	case len(images) > MaxVisionImages:
		return nil, invalid(fmt.Sprintf("at most %d images", MaxVisionImages))
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultVisionPrompt
	}

	parts := []ai.Part{{Text: prompt + visionRules}}
	plans := make([]string, 0, len(images))
	for _, img := range images {
		p, err := s.Files.SavePlan(bytes.NewReader(img.Data), img.Name)
		if errors.Is(err, storage.ErrNotImage) {
			return nil, invalid(err.Error())
		}
		if err != nil {
			return nil, fmt.Errorf("save plan: %w", err)
		}
		plans = append(plans, p)
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, ai.Part{Data: img.Data, MIMEType: mime})
	}

	text, err := s.generate(ctx, "vision", []ai.Content{{Role: ai.RoleUser, Parts: parts}})
	if err != nil {
		return nil, err
	}
	res := &VisionResult{
		Text:       text,
		VolumeM3:   intent.EstimateVolume(text),
		PricePerM3: quote.PricePerM3,
		PlanJPGs:   plans,
		PlanJPG:    plans[0],
	}
	if res.VolumeM3 != nil {
		cost := *res.VolumeM3 * quote.PricePerM3
		res.EstimatedCostDH = &cost
	}
	return res, nil
}

// UploadPlan stores a single plan image and returns its /planjpg/ path.
func (s *AssistantService) UploadPlan(_ context.Context, r io.Reader, name string) (string, error) {
	p, err := s.Files.SavePlan(r, name)
	if errors.Is(err, storage.ErrNotImage) {
		return "", invalid(err.Error())
	}
	return p, err
}

// Chat answers the public assistant.
func (s *AssistantService) Chat(ctx context.Context, messages []ChatMessage, vc *VisionContext) (*Reply, error) {
	ctx, span := otel.Tracer("services/AssistantService").Start(ctx, "Chat",
		trace.WithAttributes(attribute.Int("turns", len(messages))),
	)
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, invalid("messages array required")
	}

	var b strings.Builder
	b.WriteString(chatPreamble)
	if vc != nil {
		b.WriteString("\n")
		b.WriteString(visionSummary(vc))
	}
	if s.Knowledge != nil {
		if hits := s.Knowledge.TopK(lastUserText(messages), knowledgeSnippets); len(hits) > 0 {
			b.WriteString("\nInformations de référence:")
			for _, h := range hits {
				b.WriteString("\n- ")
				b.WriteString(h.Snippet)
			}
		}
	}

	text, err := s.generate(ctx, "chat", withPreamble(b.String(), messages))
	if err != nil {
		return nil, err
	}
	return &Reply{Text: text}, nil
}

func visionSummary(vc *VisionContext) string {
	num := func(p *float64, def string) string {
		if p == nil {
			return def
		}
		return quote.FormatPrice(*p)
	}
	return fmt.Sprintf("Vision analysis summary: %s\nVolume(m3): %s; Price/m3: %s; Estimated cost(DH): %s",
		vc.Text, num(vc.VolumeM3, "unknown"), num(vc.PricePerM3, strconv.Itoa(quote.PricePerM3)), num(vc.EstimatedCostDH, "unknown"))
}

func withPreamble(preamble string, messages []ChatMessage) []ai.Content {
	out := make([]ai.Content, 0, len(messages)+1)
	out = append(out, ai.UserText(preamble))
	for _, m := range messages {
		role := ai.RoleUser
		if m.Role == "assistant" || m.Role == string(ai.RoleModel) {
			role = ai.RoleModel
		}
		out = append(out, ai.Content{Role: role, Parts: []ai.Part{{Text: m.Content}}})
	}
	return out
}

func lastUserText(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "assistant" && messages[i].Role != string(ai.RoleModel) {
			return messages[i].Content
		}
	}
	return ""
}

// AdminChat answers the admin assistant. baseURL ("scheme://host") prefixes
// quote links.
func (s *AssistantService) AdminChat(ctx context.Context, adminID, baseURL string, messages []ChatMessage) (*Reply, error) {
	ctx, span := otel.Tracer("services/AssistantService").Start(ctx, "AdminChat",
		trace.WithAttributes(
			attribute.String("admin.id", adminID),
			attribute.Int("turns", len(messages)),
		),
	)
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, invalid("messages array required")
	}

	in := intent.Detect(messages[len(messages)-1].Content, s.clock())
	span.SetAttributes(attribute.String("intent", in.Kind.String()))
	baseURL = strings.TrimRight(baseURL, "/")

	switch in.Kind {
	case intent.QuoteLinks:
		return s.quoteLinks(ctx, adminID, baseURL, in)
	case intent.Notify:
		return s.notify(ctx, adminID, baseURL, in)
	}

	stats, err := s.statsText(ctx)
	if err != nil {
		return nil, err
	}
	var nom, prenom string
	if a, err := repo.GetAdmin(ctx, s.DB, adminID); err == nil {
		nom, prenom = a.Nom, a.Prenom
	}
	text, err := s.generate(ctx, "admin_chat", withPreamble(fmt.Sprintf(adminPreambleFormat, nom, prenom, stats), messages))
	if err != nil {
		return nil, err
	}
	return &Reply{Text: text, Intent: in.Kind.String()}, nil
}

func (s *AssistantService) quoteLinks(ctx context.Context, adminID, baseURL string, in intent.Intent) (*Reply, error) {
	r := *in.Range
	links, err := s.Demandes.QuoteLinks(ctx, r)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	text.WriteString("Voici les liens de téléchargement des devis pour la période " + r.Label() + " :\n")
	if len(links) == 0 {
		text.WriteString(noQuotesText)
	}
	for i, l := range links {
		if i > 0 {
			text.WriteString("\n")
		}
		fmt.Fprintf(&text, "• %s%s (ID %d)", baseURL, l.PDFPath, l.ID)
	}

	reply := &Reply{Text: text.String(), HTML: linksHTML(baseURL, r, links), Intent: in.Kind.String()}
	if in.Sector != "" {
		n, err := s.Notifications.Broadcast(ctx, Broadcast{
			Sector:   string(in.Sector),
			Title:    "Liens de devis (" + r.Label() + ")",
			BodyHTML: reply.HTML + autoFooter,
			AdminID:  adminID,
		})
		if err != nil {
			return nil, err
		}
		reply.Recipients = &n
	}
	return reply, nil
}

func (s *AssistantService) notify(ctx context.Context, adminID, baseURL string, in intent.Intent) (*Reply, error) {
	var body strings.Builder
	if in.CustomText != "" {
		body.WriteString(`<div style="margin-bottom:8px;">` + in.CustomText + `</div>`)
	}
	if in.Range != nil {
		links, err := s.Demandes.QuoteLinks(ctx, *in.Range)
		if err != nil {
			return nil, err
		}
		body.WriteString(linksHTML(baseURL, *in.Range, links))
	}
	if body.Len() == 0 {
		body.WriteString("<div>(Aucun contenu à diffuser)</div>")
	}
	title := "Notification"
	if in.CustomText != "" {
		title = "Instruction"
	}

	n, err := s.Notifications.Broadcast(ctx, Broadcast{
		Sector:   string(in.Sector),
		Title:    title,
		BodyHTML: body.String(),
		AdminID:  adminID,
	})
	if err != nil {
		return nil, err
	}
	confirm := fmt.Sprintf("Notification envoyée au secteur %s (%d destinataires).", in.Sector, n)
	return &Reply{
		Text:       confirm,
		HTML:       "<div><strong>" + confirm + "</strong></div>",
		Intent:     in.Kind.String(),
		Recipients: &n,
	}, nil
}

func linksHTML(baseURL string, r intent.Range, links []ExportItem) string {
	var b strings.Builder
	b.WriteString(`<div><strong>Liens de téléchargement des devis</strong> <span style="color:#6b7280">(` + r.Label() + `)</span></div>`)
	if len(links) == 0 {
		b.WriteString("<div>" + noQuotesText + "</div>")
	}
	for _, l := range links {
		href := html.EscapeString(baseURL + l.PDFPath)
		fmt.Fprintf(&b, `<div>• <a href="%s" target="_blank" rel="noopener">%d</a></div>`, href, l.ID)
	}
	return b.String()
}

// statsText summarizes the demande table for the admin preamble.
func (s *AssistantService) statsText(ctx context.Context) (string, error) {
	count, err := repo.CountDemandes(ctx, s.DB)
	if err != nil {
		return "", err
	}
	recent, err := repo.RecentDemandes(ctx, s.DB, recentDemandes)
	if err != nil {
		return "", err
	}
	months, err := repo.MonthlyTotals(ctx, s.DB, s.clock(), statsMonths)
	if err != nil {
		return "", err
	}

	items := make([]string, 0, len(recent))
	for _, d := range recent {
		items = append(items, fmt.Sprintf("%d %s %s %sDH %s", d.ID, d.Nom, d.Prenom, quote.FormatPrice(d.Prix), d.Statut))
	}
	totals := make([]string, 0, len(months))
	for i := len(months) - 1; i >= 0; i-- {
		if m := months[i]; m.Count > 0 {
			totals = append(totals, m.Month+":"+quote.FormatPrice(m.Total)+"DH")
		}
	}
	return fmt.Sprintf("Stats: Demandes totales=%d. Dernières demandes: %s. Totaux mensuels: %s.",
		count, strings.Join(items, " | "), strings.Join(totals, " / ")), nil
}
