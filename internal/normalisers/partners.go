package normalisers

import (
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure Partners implements the interface.
var _ driven.SchemaMapper = (*Partners)(nil)

var partnersAliases = aliasTable{
	"company_id":    {"cnpj", "cnpj_empresa", "cnpj_basico"},
	"company_name":  {"razao_social", "empresa", "nome_empresa", "nome_empresarial"},
	"partner_name":  {"nome_socio", "socio_nome", "nome_do_socio", "socio"},
	"partner_id":    {"cnpj_cpf_do_socio", "cpf_cnpj_socio", "socio_cpf_cnpj", "cpf_socio"},
	"qualification": {"qualificacao_socio", "qualificacao", "qualificacao_do_socio"},
	"since":         {"data_entrada_sociedade", "data_entrada"},
}

// Partners maps company partnership registers. The partner is the subject
// and holds a PARTNER_OF relation to the company.
type Partners struct{}

// NewPartners creates the partners mapper.
func NewPartners() *Partners {
	return &Partners{}
}

// Dataset returns the dataset name.
func (m *Partners) Dataset() string {
	return DatasetPartners
}

// Aliases returns the accepted column keys per canonical field.
func (m *Partners) Aliases() map[string][]string {
	return partnersAliases.clone()
}

// Map produces the partner observation related to its company.
func (m *Partners) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, partnersAliases)

	partnerID := r.get("partner_id")
	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          idKind(partnerID, domain.EntityPerson),
		RawIdentifier: partnerID,
		Name:          r.get("partner_name"),
		Attributes:    map[string]string{},
	}
	if obs.Name == "" && obs.RawIdentifier == "" {
		return nil, skip(rec, "no partner name or id")
	}

	company := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          domain.EntityOrganization,
		RawIdentifier: r.get("company_id"),
		Name:          r.get("company_name"),
		Attributes:    map[string]string{},
	}
	if company.Name == "" && company.RawIdentifier == "" {
		return nil, skip(rec, "no company name or id")
	}

	rel := domain.Relation{
		Type:        domain.RelPartnerOf,
		Counterpart: company,
		Attributes:  attrs("qualification", r.get("qualification")),
	}
	if since, ok := r.date("since"); ok {
		rel.Attributes["since"] = formatDate(since)
	}
	obs.Related = []domain.Relation{rel}
	return []domain.Observation{obs}, nil
}
