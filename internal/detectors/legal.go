package detectors

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Legal-basis tags.
const (
	TagBidSplitting     = "fracionamento"
	TagSalaryCeiling    = "teto_constitucional"
	TagNepotism         = "nepotismo"
	TagDonationContract = "doacao_contrato"
	TagConcentration    = "concentracao_mercado"
	TagBlockTravel      = "viagem_bloco"
	TagSanctionedVendor = "empresa_suspensa"
	TagSalaryOutlier    = "outlier_salarial"
	TagWeekend          = "fim_de_semana"
	TagAssetGrowth      = "variacao_patrimonial"
	TagPoliticalPartner = "socio_politico"
	TagDirectAward      = "contratacao_direta"
)

//go:embed legal.yaml
var legalYAML []byte

type legalFile struct {
	LegalBasis map[string]string `yaml:"legal_basis"`
}

var loadLegal = sync.OnceValues(func() (map[string]string, error) {
	var f legalFile
	if err := yaml.Unmarshal(legalYAML, &f); err != nil {
		return nil, fmt.Errorf("parse embedded legal.yaml: %w", err)
	}
	return f.LegalBasis, nil
})

// LegalBasis returns the citation for a tag, or "" when the tag is unknown.
func LegalBasis(tag string) string {
	table, err := loadLegal()
	if err != nil {
		return ""
	}
	return table[tag]
}

// LegalTags returns every tag in the table, sorted.
func LegalTags() []string {
	table, _ := loadLegal()
	tags := make([]string, 0, len(table))
	for tag := range table {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}
