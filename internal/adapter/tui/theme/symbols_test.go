package theme

import "testing"

func TestInitSymbolsASCIIOverride(t *testing.T) {
	t.Cleanup(InitSymbols)
	t.Setenv("WINGMAN_ASCII_SYMBOLS", "1")
	InitSymbols()

	if Symbols.Success != "[OK]" {
		t.Errorf("Success = %q, want [OK]", Symbols.Success)
	}
	if Symbols.Bullet != "*" {
		t.Errorf("Bullet = %q, want *", Symbols.Bullet)
	}
}

func TestUnicodeTerminalLocale(t *testing.T) {
	tests := []struct {
		lcAll, lang string
		want        bool
	}{
		{"en_US.UTF-8", "", true},
		{"", "de_DE.utf8", true},
		{"POSIX", "en_US.UTF-8", false},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Setenv("WINGMAN_ASCII_SYMBOLS", "")
		t.Setenv("LC_ALL", tt.lcAll)
		t.Setenv("LC_CTYPE", "")
		t.Setenv("LANG", tt.lang)
		if got := UnicodeTerminal(); got != tt.want {
			t.Errorf("LC_ALL=%q LANG=%q: got %v, want %v", tt.lcAll, tt.lang, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ v, lo, hi, want int }{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}
