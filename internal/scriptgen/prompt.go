package scriptgen

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultSystem = "Eres guionista de pódcast en español de España. " +
		"Escribe guiones claros y naturales para ser locutados. " +
		"No inventes hechos. Usa únicamente lo que viene en 'summary' y, si está, en 'text'. " +
		"Mantén nombres y cifras tal cual aparecen. " +
		"No incluyas URLs en el cuerpo del guion. " +
		"Incluye una única cita de la fuente cerca del final, usando el nombre del medio y el dominio. " +
		"Longitud objetivo entre ciento cincuenta y doscientas veinticinco palabras. " +
		"Frases cortas, sin emojis ni markdown."

	// DefaultIntro and DefaultOutro open and close an episode. {query} is
	// replaced with the episode query.
	DefaultIntro = "Hola, aquí tienes las noticias clave sobre {query}."
	DefaultOutro = "Gracias por escuchar. Hasta la próxima."

	contextWords = 1200
)

var (
	titleSeparator = regexp.MustCompile(`[-|–—]\s*`)
	outletCut      = regexp.MustCompile(`[:|•]`)
)

// outletFromTitle returns the outlet aggregators append to titles, as in
// "Titular - El País". Titles without a separator are returned whole.
func outletFromTitle(title string) string {
	whole := strings.TrimSpace(title)
	parts := titleSeparator.Split(title, -1)
	if len(parts) < 2 {
		return whole
	}
	outlet := strings.TrimSpace(outletCut.Split(strings.TrimSpace(parts[len(parts)-1]), 2)[0])
	if outlet == "" {
		return whole
	}
	return outlet
}

// domainFromURL returns the lower-cased host of raw without a www. prefix.
func domainFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// trimTextForContext keeps the first maxWords words of text.
func trimTextForContext(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:maxWords], " ")
}

func fillTemplate(template, query string) string {
	return strings.ReplaceAll(template, "{query}", query)
}

type promptInput struct {
	Style       string
	Title       string
	ResolvedURL string
	Summary     string
	Text        string
	Query       string
	Intro       string
	Outro       string
}

// buildMessages returns the system rules and one user message carrying the
// item as "key: value" lines, which the template backend reads back.
func buildMessages(in promptInput) []openai.ChatCompletionMessage {
	outlet := "la fuente original"
	if in.Title != "" {
		outlet = outletFromTitle(in.Title)
	}
	domain := domainFromURL(in.ResolvedURL)
	if domain == "" {
		domain = "el sitio del medio"
	}
	text := trimTextForContext(in.Text, contextWords)
	if text == "" {
		text = "(sin texto, usa solo el summary)"
	}
	intro, outro := in.Intro, in.Outro
	if intro == "" {
		intro = DefaultIntro
	}
	if outro == "" {
		outro = DefaultOutro
	}

	lines := []string{
		"Estilo: " + in.Style,
		"Query del episodio: " + in.Query,
		"Plantillas:",
		"- Intro: " + intro,
		"- Outro: " + outro,
		"",
		"Instrucciones de salida:",
		"1) Devuelve solo el guion final en texto plano.",
		"2) Este guion corresponde a un único ítem del episodio.",
		"3) Empieza si procede con una línea breve que sitúe el tema.",
		"4) Explica de forma concisa a partir de 'summary'. Si hay 'text', úsalo solo para reforzar, sin agregar hechos nuevos.",
		"5) Incluye una línea de 'por qué importa'.",
		fmt.Sprintf("6) Cita cerca del final exactamente así: 'Fuente. %s, según información publicada en %s.'", outlet, domain),
		"7) No incluyas URLs en el cuerpo. Frases cortas. Sin emojis ni markdown.",
		"",
		"Datos del ítem:",
		"title: " + in.Title,
		"resolved_url: " + in.ResolvedURL,
		"outlet: " + outlet,
		"domain: " + domain,
		"summary: " + in.Summary,
		"text: " + text,
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: defaultSystem},
		{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(strings.Join(lines, "\n"))},
	}
}
