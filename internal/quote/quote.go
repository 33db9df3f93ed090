// Package quote renders the fixed-layout quote PDF for a demande.
//
// Page one carries the header, the client block, a one-row estimate table,
// the total, and the reference-price disclaimer. When the demande has a
// readable plan image, page two shows it scaled to fit. Image problems never
// fail the render: a bad logo or plan is simply left out.
package quote

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"io"
	"os"
	"strconv"

	"github.com/phpdave11/gofpdf"

	"github.com/zalagh/plancher-backend/internal/storage"
)

// PricePerM3 is the reference concrete price quoted on every document.
const PricePerM3 = 150

const (
	pageLeft   = 50.0
	pageRight  = 545.0
	pageWidth  = pageRight - pageLeft
	footerY    = 760.0
	planBoxTop = 90.0
	planBoxH   = 650.0
	fontFamily = "Helvetica"
)

// Data is everything printed on a quote.
type Data struct {
	ID         uint
	Nom        string
	Prenom     string
	Telephone  string
	TypeProjet string
	Statut     string
	Prix       float64

	// PlanPath and LogoPath are disk paths; empty means absent.
	PlanPath string
	LogoPath string
}

type rgb struct{ r, g, b int }

var (
	colorBrand  = rgb{0x0d, 0x47, 0xa1}
	colorText   = rgb{0x1f, 0x29, 0x37}
	colorRule   = rgb{0xe5, 0xe7, 0xeb}
	colorHeadBG = rgb{0xf3, 0xf4, 0xf6}
	colorTotal  = rgb{0x0b, 0x7a, 0x42}
	colorMuted  = rgb{0x6b, 0x72, 0x80}
)

// Render writes the quote for d to w and returns the page count.
func Render(d Data, w io.Writer) (int, error) {
	pdf := build(d)
	if pdf.Err() {
		return 0, fmt.Errorf("render quote %d: %w", d.ID, pdf.Error())
	}
	pages := pdf.PageCount()
	if err := pdf.Output(w); err != nil {
		return 0, fmt.Errorf("write quote %d: %w", d.ID, err)
	}
	return pages, nil
}

// RenderFile renders the quote for d into path, replacing any previous file.
func RenderFile(d Data, path string) (int, error) {
	var buf bytes.Buffer
	pages, err := Render(d, &buf)
	if err != nil {
		return 0, err
	}
	if err := storage.WriteFile(path, buf.Bytes()); err != nil {
		return 0, err
	}
	return pages, nil
}

// FormatPrice prints a price without trailing zeros ("900", "1234.5").
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func build(d Data) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pageLeft, pageLeft, pageLeft)
	pdf.SetAutoPageBreak(false, pageLeft)
	pdf.SetTitle(fmt.Sprintf("Devis %d", d.ID), true)
	pdf.SetCreator("Zalagh Plancher", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	text := func(x, y, size float64, style string, c rgb, s string) {
		pdf.SetFont(fontFamily, style, size)
		pdf.SetTextColor(c.r, c.g, c.b)
		pdf.SetXY(x, y)
		pdf.CellFormat(0, size+2, tr(s), "", 0, "L", false, 0, "")
	}
	rule := func(y float64) {
		pdf.SetDrawColor(colorRule.r, colorRule.g, colorRule.b)
		pdf.SetLineWidth(1)
		pdf.Line(pageLeft, y, pageRight, y)
	}
	footer := func() {
		rule(footerY)
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(colorMuted.r, colorMuted.g, colorMuted.b)
		pdf.SetXY(pageLeft, footerY+5)
		pdf.CellFormat(pageWidth, 11, tr("Zalagh Plancher — Devis généré automatiquement"), "", 0, "C", false, 0, "")
	}

	pdf.AddPage()

	// Header
	if logo, ok := registerImage(pdf, "logo", d.LogoPath); ok {
		pdf.ImageOptions("logo", pageLeft, 40, 48, 48, false, logo.opts, 0, "")
	}
	text(110, 45, 18, "B", colorBrand, "Zalagh Plancher")
	text(110, 68, 10, "", colorText, "Devis / Demande")
	rule(95)

	// Client block
	y := 115.0
	line := func(s string) {
		text(pageLeft, y, 12, "", colorText, s)
		y += 17
	}
	line(fmt.Sprintf("N° Demande: %d", d.ID))
	line(fmt.Sprintf("Client: %s %s", d.Nom, d.Prenom))
	if d.Telephone != "" {
		line("Téléphone: " + d.Telephone)
	}
	line("Type de projet: " + d.TypeProjet)
	line("Statut: " + d.Statut)

	// Estimate table
	cols := []float64{300, 100, 100}
	y += 12
	pdf.SetFillColor(colorHeadBG.r, colorHeadBG.g, colorHeadBG.b)
	pdf.Rect(pageLeft, y, pageWidth, 20, "F")
	x := pageLeft
	for i, h := range []string{"Désignation", "Qté/Unité", "Montant (DH)"} {
		text(x+8, y+4, 11, "B", colorBrand, h)
		x += cols[i]
	}
	y += 24

	prix := FormatPrice(d.Prix)
	x = pageLeft
	for i, cell := range []string{"Estimation fourniture béton prêt à l’emploi", "-", prix} {
		text(x+8, y, 11, "", colorText, cell)
		x += cols[i]
	}
	y += 18
	rule(y)
	y += 10
	text(pageLeft+cols[0]+cols[1]+8, y, 12, "B", colorTotal, "Total TTC (indicatif): "+prix+" DH")
	y += 24

	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(colorMuted.r, colorMuted.g, colorMuted.b)
	pdf.SetXY(pageLeft, y)
	pdf.MultiCell(pageWidth, 11, tr(fmt.Sprintf(
		"Prix unitaire de référence: %d DH / m³. Valable sous réserve de confirmation et conditions de chantier.",
		PricePerM3)), "", "L", false)

	footer()

	// Plan page
	if plan, ok := registerImage(pdf, "plan", d.PlanPath); ok {
		pdf.AddPage()
		text(pageLeft, 50, 16, "B", colorBrand, "Plan du projet")
		w, h := fit(float64(plan.width), float64(plan.height), pageWidth, planBoxH)
		px := pageLeft + (pageWidth-w)/2
		py := planBoxTop + (planBoxH-h)/2
		pdf.ImageOptions("plan", px, py, w, h, false, plan.opts, 0, "")
		footer()
	}

	return pdf
}

type registered struct {
	opts          gofpdf.ImageOptions
	width, height int
}

var errUnsupportedImage = errors.New("unsupported image format")

// registerImage loads path into pdf under name. Any failure, including a
// decoder error inside gofpdf, is cleared so the document still renders.
func registerImage(pdf *gofpdf.Fpdf, name, path string) (registered, bool) {
	if path == "" {
		return registered{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return registered{}, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return registered{}, false
	}
	imgType, err := gofpdfType(format)
	if err != nil {
		return registered{}, false
	}
	opts := gofpdf.ImageOptions{ImageType: imgType, ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() {
		pdf.ClearError()
		return registered{}, false
	}
	return registered{opts: opts, width: cfg.Width, height: cfg.Height}, true
}

func gofpdfType(format string) (string, error) {
	switch format {
	case "jpeg":
		return "JPG", nil
	case "png":
		return "PNG", nil
	}
	return "", errUnsupportedImage
}

// fit scales (w, h) to the largest size inside (maxW, maxH) keeping the
// aspect ratio.
func fit(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}
