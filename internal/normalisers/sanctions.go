package normalisers

import (
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
	"github.com/custodia-labs/sentinela/internal/identity"
)

// Ensure Sanctions implements the interface.
var _ driven.SchemaMapper = (*Sanctions)(nil)

var sanctionsAliases = aliasTable{
	"id": {
		"cpf_cnpj", "cnpj_cpf", "cpf_ou_cnpj_do_sancionado", "cnpj", "cpf",
		"sancionado_codigoformatado", "pessoa_cnpjformatado", "pessoa_cpfformatado",
	},
	"name": {
		"nome_sancionado", "razao_social", "nome", "nome_informado_pelo_orgao_sancionador",
		"razao_social_cadastro_receita", "sancionado_nome", "pessoa_nome",
	},
	"sanction_type": {"tipo_sancao", "categoria_sancao", "sancao", "tiposancao_descricaoresumida", "tiposancao_descricaoportal"},
	"start":         {"data_inicio_sancao", "data_inicio", "datainiciosancao"},
	"end":           {"data_final_sancao", "data_fim_sancao", "data_fim", "data_final", "datafimsancao"},
	"authority":     {"orgao_sancionador", "orgaosancionador_nome", "orgao_sancionador_nome"},
	"reference":     {"numero_processo", "numeroprocesso", "processo"},
}

// Sanctions maps sanction-list entries (debarment and sanctioned-company
// registers). The sanction's validity window is the event's span.
type Sanctions struct{}

// NewSanctions creates the sanctions mapper.
func NewSanctions() *Sanctions {
	return &Sanctions{}
}

// Dataset returns the dataset name.
func (m *Sanctions) Dataset() string {
	return DatasetSanctions
}

// Aliases returns the accepted column keys per canonical field.
func (m *Sanctions) Aliases() map[string][]string {
	return sanctionsAliases.clone()
}

// Map produces the sanctioned entity with one sanction event.
func (m *Sanctions) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, sanctionsAliases)

	id := r.get("id")
	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          idKind(id, domain.EntityOrganization),
		RawIdentifier: id,
		Name:          r.get("name"),
		Attributes:    map[string]string{},
	}
	if obs.Name == "" && obs.RawIdentifier == "" {
		return nil, skip(rec, "no sanctioned name or id")
	}

	ev := domain.Event{
		Type: domain.EventSanction,
		Attributes: attrs(
			domain.EvAttrSanctionType, r.get("sanction_type"),
			domain.EvAttrDepartment, r.get("authority"),
			domain.EvAttrReference, r.get("reference"),
		),
		SourceID: rec.SourceID,
	}
	if start, ok := r.date("start"); ok {
		ev.OccurredAt = start
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldOccurredAt)
	}
	if end, ok := r.date("end"); ok {
		ev.OccurredTo = end
	}

	ev.ID = eventID(domain.EventSanction,
		subjectKey(&obs),
		identity.NormalizeName(ev.Attr(domain.EvAttrSanctionType)),
		formatDate(ev.OccurredAt),
		formatDate(ev.OccurredTo),
		identity.NormalizeName(ev.Attr(domain.EvAttrDepartment)),
		ev.Attr(domain.EvAttrReference),
	)
	obs.Events = []domain.Event{ev}
	return []domain.Observation{obs}, nil
}
