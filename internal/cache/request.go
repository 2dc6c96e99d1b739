// Package cache keeps the synthesized audio for spoken replies.
//
// Replies are classified into durability tiers. Rare replies are synthesized
// for a single playback, assets are pre-supplied and never generated, common
// replies are reused until a scheduled eviction removes them, and every other
// response type is reused without expiry.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

type Tier int

const (
	Builtin Tier = iota
	Rare
	Asset
	Common
)

func (t Tier) String() string {
	switch t {
	case Rare:
		return "rare"
	case Asset:
		return "asset"
	case Common:
		return "common"
	default:
		return "builtin"
	}
}

// ParseTier maps a declared response type onto its tier. Unknown types are Builtin.
func ParseTier(responseType string) Tier {
	switch responseType {
	case "rare":
		return Rare
	case "asset":
		return Asset
	case "common":
		return Common
	default:
		return Builtin
	}
}

// Request is one reply the assistant wants to speak.
type Request struct {
	Service string
	Text    string
	Type    string // declared response_type
}

func (r Request) Tier() Tier {
	return ParseTier(r.Type)
}

// Dir is the cache subdirectory of reusable tiers: the response type itself.
func (r Request) Dir() string {
	if r.Type == "" {
		return Builtin.String()
	}
	return r.Type
}

const filler = '-'

// Sanitize lower-cases letters and turns every run of other characters into a
// single filler, trimmed at both ends. Texts that differ only in punctuation or
// spacing share a name.
func Sanitize(text string) string {
	var b strings.Builder
	pending := false

	for _, r := range text {
		if !unicode.IsLetter(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteRune(filler)
			pending = false
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// FileStem names the artifact of a reply, without extension.
func FileStem(service, text string) string {
	return strings.ToUpper(service) + "_" + Sanitize(text)
}

type serviceEntry struct {
	ResponseType string `json:"response_type"`
}

// ResponseMap declares the response type of each service.
type ResponseMap map[string]string

func LoadResponseMap(path string) (ResponseMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response map: %w", err)
	}

	var raw map[string]serviceEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response map %s: %w", path, err)
	}

	m := make(ResponseMap, len(raw))
	for service, e := range raw {
		m[service] = e.ResponseType
	}

	return m, nil
}

// Request builds the reply for a service. Services missing from the map are rare.
func (m ResponseMap) Request(service, text string) Request {
	typ, ok := m[service]
	if !ok || typ == "" {
		typ = Rare.String()
	}

	return Request{
		Service: service,
		Text:    text,
		Type:    typ,
	}
}
