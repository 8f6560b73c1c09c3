package llm

import "strings"

var mathReplacer = strings.NewReplacer(
	"×", `\times `,
	"÷", `\div `,
	"√", `\sqrt `,
	"≤", `\leq `,
	"≥", `\geq `,
	"≠", `\neq `,
	"±", `\pm `,
	"π", `\pi `,
	"°", `^{\circ}`,
	"²", `^{2}`,
	"³", `^{3}`,
)

// MathMarkup rewrites common math symbols in model text into LaTeX-style
// markup. It runs on decoded strings, never on raw JSON, since the inserted
// backslashes are not valid JSON escapes.
func MathMarkup(s string) string {
	return mathReplacer.Replace(s)
}
