package tools

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidPhone = errors.New("invalid phone")

// NormalizePhone normaliza um telefone para E.164 ("+" seguido de 8 a 15 dígitos).
//
// Heurística:
// - remove tudo que não é dígito; dígitos de largura total e arábico-índicos viram ASCII
// - "+" ou "00" na frente: número já é internacional
// - senão remove zeros de tronco e, se o número ainda não começa com o DDI padrão
//   seguido de um número nacional completo (>= 10 dígitos), prefixa o DDI padrão
func NormalizePhone(raw string, defaultCountryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}

	international := strings.HasPrefix(raw, "+")

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if !unicode.IsDigit(r) {
			continue
		}
		d, ok := asciiDigit(r)
		if !ok {
			return "", fmt.Errorf("%w: unsupported digit %q", ErrInvalidPhone, r)
		}
		b.WriteByte(d)
	}
	phone := b.String()

	if !international && strings.HasPrefix(phone, "00") {
		phone = phone[2:]
		international = true
	}

	if !international {
		phone = strings.TrimLeft(phone, "0")
		cc := strings.TrimLeft(strings.TrimSpace(defaultCountryCode), "+")
		if cc != "" && !(strings.HasPrefix(phone, cc) && len(phone)-len(cc) >= 10) {
			phone = cc + phone
		}
	}

	if len(phone) < 8 || len(phone) > 15 {
		return "", fmt.Errorf("%w: length %d", ErrInvalidPhone, len(phone))
	}
	return "+" + phone, nil
}

// asciiDigit converte os dígitos Unicode que aparecem em teclados de celular para '0'..'9'.
func asciiDigit(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r), true
	case r >= '\uFF10' && r <= '\uFF19': // largura total
		return byte('0' + r - '\uFF10'), true
	case r >= '\u0660' && r <= '\u0669': // arábico-índico
		return byte('0' + r - '\u0660'), true
	case r >= '\u06F0' && r <= '\u06F9': // arábico-índico estendido
		return byte('0' + r - '\u06F0'), true
	}
	return 0, false
}
