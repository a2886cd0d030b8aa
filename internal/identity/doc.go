// Package identity validates and canonicalises person and organisation
// identifiers, names and locale currency strings, and provides the
// Jaro-Winkler similarity used to suggest surname relationships.
//
// Everything here is pure and safe for concurrent use.
package identity
