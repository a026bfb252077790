package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const checkMacField = "CheckMacValue"

// ECPay требует кодирование как у .NET HttpUtility.UrlEncode
var dotNetUnescape = strings.NewReplacer(
	"%2d", "-",
	"%5f", "_",
	"%2e", ".",
	"%21", "!",
	"%2a", "*",
	"%28", "(",
	"%29", ")",
)

// CheckMacValue считает подпись ECPay: ключи по алфавиту без учёта регистра,
// HashKey=...&k=v&...&HashIV=..., urlencode, нижний регистр, SHA256, верхний регистр.
// Поле CheckMacValue в расчёт не входит.
func CheckMacValue(params map[string]string, hashKey, hashIV string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == checkMacField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var b strings.Builder
	b.WriteString("HashKey=")
	b.WriteString(hashKey)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString("&HashIV=")
	b.WriteString(hashIV)

	encoded := strings.ToLower(url.QueryEscape(b.String()))
	encoded = strings.ReplaceAll(encoded, "~", "%7e")
	encoded = dotNetUnescape.Replace(encoded)

	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyCheckMacValue сравнивает присланную подпись с пересчитанной за постоянное время
func VerifyCheckMacValue(params map[string]string, hashKey, hashIV string) bool {
	got := strings.ToUpper(params[checkMacField])
	if got == "" {
		return false
	}
	want := CheckMacValue(params, hashKey, hashIV)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// FlattenForm берёт первое значение каждого поля формы
func FlattenForm(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
