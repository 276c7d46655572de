package cnl

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/fernet/fernet-go"
)

// ErrCipher means the ciphertext could not be decrypted with the
// recovered key. Distinct from ErrKeyRecovery so the two failure modes
// can be diagnosed apart.
var ErrCipher = errors.New("container decryption failed")

var unsafeNameRe = regexp.MustCompile(`[^\w.-]`)

// DecodeTransport undoes the legacy transport encoding of the ciphertext
// blob: form submission turns + into spaces, so spaces are restored to +
// before percent- and base64-decoding.
func DecodeTransport(crypted string) ([]byte, error) {
	s := strings.ReplaceAll(crypted, " ", "+")
	unescaped, err := url.PathUnescape(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	token, err := base64.StdEncoding.DecodeString(strings.TrimSpace(unescaped))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	return token, nil
}

// DecryptURLs decrypts the container token with the hex-encoded key and
// splits the plaintext into the URL list. NUL padding and carriage
// returns are stripped, empty lines discarded.
func DecryptURLs(keyHex string, token []byte) ([]string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not hex", ErrKeyRecovery)
	}
	if len(raw) != len(fernet.Key{}) {
		return nil, fmt.Errorf("%w: key has %d bytes", ErrKeyRecovery, len(raw))
	}

	var key fernet.Key
	copy(key[:], raw)

	plain := fernet.VerifyAndDecrypt(token, 0, []*fernet.Key{&key})
	if plain == nil {
		return nil, ErrCipher
	}

	return SplitURLs(string(plain)), nil
}

// SplitURLs cleans decrypted or plaintext container content into the
// final URL list.
func SplitURLs(content string) []string {
	content = strings.ReplaceAll(content, "\x00", "")
	content = strings.ReplaceAll(content, "\r", "")

	var urls []string
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			urls = append(urls, line)
		}
	}
	return urls
}

// SanitizeName reduces a package name to a safe file name component.
func SanitizeName(name string) string {
	return unsafeNameRe.ReplaceAllString(name, "_")
}
