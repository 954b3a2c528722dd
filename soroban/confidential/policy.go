// Package confidential restricts directory names to key holders.
//
// A Rule matches names by a wildcard prefix pattern. A confidential rule
// requires a signature to list its names; a read-only rule requires one to
// add or remove entries. Names matched by no rule stay public.
package confidential

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	AlgorithmNacl  = "nacl"
	AlgorithmEcdsa = "ecdsa"
)

// Rule protects the names matching Prefix, where '*' matches any run of
// characters. PublicKey is the hex key allowed to sign for them.
type Rule struct {
	Prefix       string `yaml:"prefix"`
	Algorithm    string `yaml:"algorithm"`
	PublicKey    string `yaml:"publicKey"`
	Confidential bool   `yaml:"confidential"`
	ReadOnly     bool   `yaml:"readOnly"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Policy is an immutable, compiled rule set. A nil Policy matches nothing.
type Policy struct {
	rules []compiledRule
}

// NewPolicy compiles rules.
func NewPolicy(rules []Rule) (*Policy, error) {
	p := &Policy{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Prefix == "" {
			return nil, fmt.Errorf("confidential: rule %d: empty prefix", i)
		}
		switch r.Algorithm {
		case AlgorithmNacl, AlgorithmEcdsa:
		default:
			return nil, fmt.Errorf("confidential: rule %d: unknown algorithm %q", i, r.Algorithm)
		}
		if r.PublicKey == "" {
			return nil, fmt.Errorf("confidential: rule %d: empty public key", i)
		}
		re, err := regexp.Compile(wildcard(r.Prefix))
		if err != nil {
			return nil, fmt.Errorf("confidential: rule %d: %w", i, err)
		}
		p.rules = append(p.rules, compiledRule{Rule: r, re: re})
	}
	return p, nil
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Lookup returns the rule governing name for a caller presenting
// publicKey: among the rules matching name, the last one for publicKey,
// otherwise the first. The zero Rule means name is public.
func (p *Policy) Lookup(name, publicKey string) Rule {
	if p == nil {
		return Rule{}
	}
	var first, keyed *Rule
	for i := range p.rules {
		r := &p.rules[i]
		if !r.re.MatchString(name) {
			continue
		}
		if first == nil {
			first = &r.Rule
		}
		if publicKey != "" && r.PublicKey == publicKey {
			keyed = &r.Rule
		}
	}
	switch {
	case keyed != nil:
		return *keyed
	case first != nil:
		return *first
	default:
		return Rule{}
	}
}

// wildcard turns a '*' pattern into an anchored regular expression.
func wildcard(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}
