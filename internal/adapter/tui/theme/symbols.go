package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the glyphs the console draws with.
type SymbolSet struct {
	Success  string
	Error    string
	Warning  string
	Mic      string
	Bullet   string
	Ellipsis string
	User     string
	Bot      string
}

var (
	unicodeSymbols = SymbolSet{
		Success:  "✓",
		Error:    "✗",
		Warning:  "⚠",
		Mic:      "\U0001F399",
		Bullet:   "•",
		Ellipsis: "…",
		User:     "You",
		Bot:      "Wingman",
	}
	asciiSymbols = SymbolSet{
		Success:  "[OK]",
		Error:    "[ERR]",
		Warning:  "[!]",
		Mic:      "[mic]",
		Bullet:   "*",
		Ellipsis: "...",
		User:     "You",
		Bot:      "Wingman",
	}
)

// Symbols is the active set, chosen by InitSymbols.
var Symbols = unicodeSymbols

// UnicodeTerminal reports whether glyphs outside ASCII are safe to draw.
// WINGMAN_ASCII_SYMBOLS=1 forces ASCII; a UTF-8 locale or no locale at all
// allows Unicode.
func UnicodeTerminal() bool {
	if v := os.Getenv("WINGMAN_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") || val == "c.utf8"
	}
	return true
}

// InitSymbols picks the symbol set for the current environment.
func InitSymbols() {
	if UnicodeTerminal() {
		Symbols = unicodeSymbols
	} else {
		Symbols = asciiSymbols
	}
}

func init() {
	InitSymbols()
}
