package normalisers

import (
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Ensure Contracts implements the interface.
var _ driven.SchemaMapper = (*Contracts)(nil)

// departmentNamespace prefixes the surrogate of departments published by name only.
const departmentNamespace = "department"

var contractsAliases = aliasTable{
	"vendor_name":   {"empresa_nome", "razao_social", "fornecedor", "contratado", "nome_fornecedor", "empresa", "nome_contratado"},
	"vendor_id":     {"cnpj", "cnpj_cpf", "cpf_cnpj", "cnpj_fornecedor", "cnpjcpf", "cnpj_contratado", "fornecedor_cnpj"},
	"department":    {"secretaria", "orgao", "unidade_gestora", "orgao_contratante", "unidade_orcamentaria"},
	"department_id": {"cnpj_orgao", "orgao_cnpj"},
	"amount":        {"valor_total", "valor", "valor_contrato", "valor_global", "valor_inicial"},
	"date":          {"data_contrato", "data_assinatura", "data", "data_inicio_vigencia", "data_publicacao"},
	"end":           {"data_fim_vigencia", "data_termino", "vigencia_fim"},
	"reference":     {"numero_contrato", "numero", "contrato", "processo", "numero_processo"},
	"description":   {"objeto", "descricao", "objeto_contrato"},
	"modality":      {"modalidade", "modalidade_licitacao", "modalidade_compra"},
}

// Contracts maps public contracts and direct purchases. The vendor is the
// subject; the contracting department becomes an organisation counterpart.
type Contracts struct{}

// NewContracts creates the contracts mapper.
func NewContracts() *Contracts {
	return &Contracts{}
}

// Dataset returns the dataset name.
func (m *Contracts) Dataset() string {
	return DatasetContracts
}

// Aliases returns the accepted column keys per canonical field.
func (m *Contracts) Aliases() map[string][]string {
	return contractsAliases.clone()
}

// Map produces the vendor observation with one contract event and, when the
// department is named, a CONTRACTED_BY relation.
func (m *Contracts) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, contractsAliases)

	vendorID := r.get("vendor_id")
	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          idKind(vendorID, domain.EntityOrganization),
		RawIdentifier: vendorID,
		Name:          r.get("vendor_name"),
		Attributes:    map[string]string{},
	}
	if obs.Name == "" && obs.RawIdentifier == "" {
		return nil, skip(rec, "no vendor name or id")
	}

	department := r.get("department")
	ev := domain.Event{
		Type: domain.EventContract,
		Attributes: attrs(
			domain.EvAttrDepartment, department,
			domain.EvAttrReference, r.get("reference"),
			domain.EvAttrDescription, r.get("description"),
			domain.EvAttrContractType, r.get("modality"),
		),
		SourceID: rec.SourceID,
	}
	if d, ok := r.date("date"); ok {
		ev.OccurredAt = d
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldOccurredAt)
	}
	if end, ok := r.date("end"); ok {
		ev.OccurredTo = end
	}
	amount, amountOK := r.amount("amount")
	if amountOK {
		ev.Amount = amount
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldAmount)
	}

	ev.ID = eventID(domain.EventContract,
		subjectKey(&obs),
		identity.NormalizeName(department),
		ev.Attr(domain.EvAttrReference),
		formatDate(ev.OccurredAt),
		formatAmount(amount, amountOK),
		identity.NormalizeName(ev.Attr(domain.EvAttrDescription)),
	)
	obs.Events = []domain.Event{ev}

	if dept := departmentObservation(rec.SourceID, department, r.get("department_id")); dept != nil {
		obs.Related = append(obs.Related, domain.Relation{
			Type:        domain.RelContractedBy,
			Counterpart: *dept,
		})
	}
	return []domain.Observation{obs}, nil
}

// departmentObservation describes a contracting department. Departments
// published without an organisation id share a name-based surrogate.
func departmentObservation(sourceID, name, rawID string) *domain.Observation {
	key := identity.NormalizeName(name)
	if key == "" && rawID == "" {
		return nil
	}
	dept := &domain.Observation{
		SourceID:      sourceID,
		Kind:          domain.EntityOrganization,
		RawIdentifier: rawID,
		Name:          name,
	}
	if key != "" {
		dept.SequentialID = departmentNamespace + ":" + key
	}
	return dept
}
