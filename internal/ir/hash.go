package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFact       = "micruler/fact/v1"
	DomainBinding    = "micruler/binding/v1"
	DomainBreakpoint = "micruler/breakpoint/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FormatMIC renders a concentration as its shortest round-tripping decimal
// string. Used wherever a float must take part in a canonical hash.
func FormatMIC(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FactKey computes the identity of a fact. Two facts with equal fields
// always share a key.
func FactKey(f Fact) (string, error) {
	canonical, err := MarshalCanonical(f.canonical())
	if err != nil {
		return "", fmt.Errorf("FactKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// BindingHash computes the refraction identity of a rule activation from
// the keys of the facts it matched. Order of keys does not matter.
func BindingHash(factKeys []string) (string, error) {
	arr := make(IRArray, len(factKeys))
	for i, k := range sortedCopy(factKeys) {
		arr[i] = IRString(k)
	}

	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}

// BreakpointID computes the content-addressed ID of a breakpoint record.
func BreakpointID(r BreakpointRecord) (string, error) {
	canonical, err := MarshalCanonical(r.canonical())
	if err != nil {
		return "", fmt.Errorf("BreakpointID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBreakpoint, canonical), nil
}

// MustFactKey is like FactKey but panics on error.
// Facts built from the package's own types always marshal.
func MustFactKey(f Fact) string {
	key, err := FactKey(f)
	if err != nil {
		panic(err)
	}
	return key
}

// MustBindingHash is like BindingHash but panics on error.
func MustBindingHash(factKeys []string) string {
	hash, err := BindingHash(factKeys)
	if err != nil {
		panic(err)
	}
	return hash
}
