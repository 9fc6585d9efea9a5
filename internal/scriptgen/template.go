package scriptgen

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// TemplateModel names scripts written by the Template backend.
const TemplateModel = "template-v1"

const (
	templateMinWords = 150
	templateMaxWords = 200
	// templateTail counts the closing sentences: "Fuente.", the citation
	// and the sign-off.
	templateTail = 3
)

// Template writes a fixed-shape script from the fields of the prompt. It
// needs no network and never fails on a well-formed prompt.
type Template struct{}

func (Template) Name() string { return BackendTemplate }

func (Template) Generate(_ context.Context, messages []openai.ChatCompletionMessage, _ Params) (Result, error) {
	payload := lastUserContent(normalizeMessages(messages))
	if payload == "" {
		return Result{Model: TemplateModel}, fmt.Errorf("template: %w", errEmptyMessages)
	}

	style := strings.ToLower(promptField(payload, "style", "estilo"))
	switch style {
	case "educativo", "conversacional", "humoristico":
	default:
		style = "educativo"
	}
	script := buildTemplateScript(
		promptField(payload, "summary", "resumen"),
		promptField(payload, "outlet"),
		promptField(payload, "domain", "dominio"),
		style,
	)
	return Result{Text: script, Model: TemplateModel}, nil
}

func lastUserContent(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

// promptField reads a "key: value" line, optionally bulleted, for the first
// key present.
func promptField(payload string, keys ...string) string {
	for _, k := range keys {
		re := regexp.MustCompile(`(?im)^\s*[-*•]?\s*` + regexp.QuoteMeta(k) + `\s*:\s*(.+?)\s*$`)
		if m := re.FindStringSubmatch(payload); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var (
	sentenceBreak = regexp.MustCompile(`[.!?]\s+`)
	whitespace    = regexp.MustCompile(`\s+`)
	smallNumber   = regexp.MustCompile(`\b\d+\b`)
)

// splitSentences splits after ., ! or ? followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBreak.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func buildTemplateScript(summary, outlet, domain, style string) string {
	if outlet == "" {
		outlet = "la fuente original"
	}
	if domain == "" {
		domain = "el sitio del medio"
	}

	base := collapseSpaces(strings.Join([]string{
		"Titular del día. " + strings.TrimSpace(summary),
		"En pocas palabras, este es el punto central. " +
			"Para entenderlo mejor, piensa en las consecuencias directas y en quién se ve afectado. " +
			"La clave es quedarse con la idea principal sin perderse en los detalles. " +
			"Si solo recuerdas una cosa, que sea esta.",
		"¿Por qué importa. " +
			"Porque influye en decisiones públicas, en empresas o en la vida diaria de muchas personas. " +
			"También ayuda a interpretar otros datos y a anticipar lo que puede venir después.",
		fmt.Sprintf("Fuente. %s, según información publicada en %s.", outlet, domain),
		"Con esto cerramos este tema.",
	}, " "))

	switch style {
	case "conversacional":
		var a, b []string
		for i, s := range splitSentences(base) {
			if i%2 == 0 {
				a = append(a, s)
			} else {
				b = append(b, s)
			}
		}
		base = "Voz A. " + strings.Join(a, " ") + " Voz B. " + strings.Join(b, " ")
	case "humoristico":
		base += " Nota aparte. Un poco de ironía ayuda a recordar la idea, pero sin perder el respeto por los datos."
	}

	switch n := len(strings.Fields(base)); {
	case n < templateMinWords:
		base += " Para cerrar. Quédate con la idea principal y el impacto directo."
	case n > templateMaxWords:
		// Drop body sentences from the end, keeping the lead and the
		// citation tail.
		sentences := splitSentences(base)
		for len(strings.Fields(strings.Join(sentences, " "))) > templateMaxWords && len(sentences) > templateTail+1 {
			cut := len(sentences) - templateTail - 1
			sentences = append(sentences[:cut], sentences[cut+1:]...)
		}
		base = strings.Join(sentences, " ")
	}
	return normalizeSmallNumbers(collapseSpaces(base))
}

var (
	numberUnits = [...]string{
		"cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve",
		"diez", "once", "doce", "trece", "catorce", "quince", "dieciséis", "diecisiete", "dieciocho", "diecinueve",
		"veinte", "veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco", "veintiséis",
		"veintisiete", "veintiocho", "veintinueve",
	}
	numberTens = map[int]string{
		30: "treinta", 40: "cuarenta", 50: "cincuenta", 60: "sesenta",
		70: "setenta", 80: "ochenta", 90: "noventa",
	}
)

// normalizeSmallNumbers spells out 0..29 and round tens up to 90 in Spanish
// so speech synthesis reads them naturally. Four digit numbers stay as
// digits since they are usually years.
func normalizeSmallNumbers(text string) string {
	return smallNumber.ReplaceAllStringFunc(text, func(s string) string {
		if len(s) == 4 {
			return s
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return s
		}
		if n >= 0 && n < len(numberUnits) {
			return numberUnits[n]
		}
		if w, ok := numberTens[n]; ok {
			return w
		}
		return s
	})
}
