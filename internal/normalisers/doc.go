// Package normalisers provides the schema mappers that turn raw rows of one
// dataset into typed observations. Each mapper knows the column aliases its
// dataset is published under and which fields are identifiers, amounts and
// dates.
//
// Mappers are registered with the Registry at startup.
package normalisers
