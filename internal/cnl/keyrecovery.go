// Package cnl implements the legacy Click'n'Load browser-integration
// protocol: key recovery from obfuscated script fragments, container
// decryption and the /flash* HTTP endpoints.
package cnl

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrKeyRecovery means no strategy produced a usable key.
var ErrKeyRecovery = errors.New("key recovery failed")

// scriptTimeout bounds how long a key-derivation fragment may execute in
// the sandbox.
const scriptTimeout = time.Second

var (
	returnLiteralRe = regexp.MustCompile(`return ('|")(.+?)('|")`)
	orgLiteralRe    = regexp.MustCompile(`var org = ('|")([^"']+)`)
)

// keyStrategy attempts to recover the key from a script fragment.
// Returns false when the fragment does not match the strategy.
type keyStrategy struct {
	name    string
	recover func(jk string) (string, bool)
}

// strategies is the priority chain: the first strategy yielding a key
// wins. The chain tolerates the varying obfuscation schemes seen across
// client versions.
var strategies = []keyStrategy{
	{"script-eval", evalScript},
	{"return-literal", matchReturnLiteral},
	{"reverse-org", reverseOrg},
}

// RecoverKey runs the strategy chain over the key-derivation fragment.
func RecoverKey(jk string, logger *zap.Logger) (string, error) {
	for _, s := range strategies {
		if key, ok := s.recover(jk); ok {
			logger.Debug("Recovered container key",
				zap.String("strategy", s.name))
			return key, nil
		}
	}
	logger.Error("No key recovery strategy matched, an alternative script engine might resolve this fragment",
		zap.String("jk", jk))
	return "", ErrKeyRecovery
}

// evalScript runs the fragment in an embedded JavaScript sandbox and calls
// the conventional f() entry point.
func evalScript(jk string) (key string, ok bool) {
	defer func() {
		if recover() != nil {
			key, ok = "", false
		}
	}()

	vm := goja.New()
	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	val, err := vm.RunString(fmt.Sprintf("%s\nf()", jk))
	if err != nil || val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", false
	}
	return val.String(), true
}

// matchReturnLiteral extracts a literal `return "..."` from the fragment.
func matchReturnLiteral(jk string) (string, bool) {
	m := returnLiteralRe.FindStringSubmatch(jk)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// reverseOrg handles the known idiom where a variable named org holds the
// reversed key.
func reverseOrg(jk string) (string, bool) {
	if !strings.Contains(jk, "dec") || !strings.Contains(jk, "org") {
		return "", false
	}
	m := orgLiteralRe.FindStringSubmatch(jk)
	if m == nil {
		return "", false
	}
	return reverseString(m[2]), true
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
