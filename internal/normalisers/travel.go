package normalisers

import (
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure Travel implements the interface.
var _ driven.SchemaMapper = (*Travel)(nil)

var travelAliases = aliasTable{
	"name":        {"nome", "beneficiario", "servidor_nome", "nome_servidor", "nome_do_beneficiario", "favorecido"},
	"id":          {"cpf", "cpf_beneficiario", "cpf_servidor"},
	"role":        {"cargo", "funcao"},
	"department":  {"orgao", "secretaria", "lotacao", "nome_orgao_solicitante"},
	"destination": {"destino", "destinos", "cidade_destino"},
	"departure":   {"data_saida", "periodo_data_de_inicio", "data_inicio", "data_partida"},
	"return":      {"data_retorno", "periodo_data_de_fim", "data_fim", "data_chegada"},
	"reason":      {"motivo", "finalidade", "objetivo"},
	"amount":      {"valor", "valor_total", "valor_diarias", "valor_das_diarias", "total"},
	"reference":   {"numero", "identificador_do_processo_de_viagem", "processo", "numero_da_proposta"},
}

// Travel maps per-diem and travel reimbursement rows.
type Travel struct{}

// NewTravel creates the travel mapper.
func NewTravel() *Travel {
	return &Travel{}
}

// Dataset returns the dataset name.
func (m *Travel) Dataset() string {
	return DatasetTravel
}

// Aliases returns the accepted column keys per canonical field.
func (m *Travel) Aliases() map[string][]string {
	return travelAliases.clone()
}

// Map produces one person observation carrying one travel event. The event
// occurs on the departure date and ends on the return date.
func (m *Travel) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, travelAliases)

	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          domain.EntityPerson,
		RawIdentifier: r.get("id"),
		Name:          r.get("name"),
		Attributes: attrs(
			domain.AttrRole, r.get("role"),
			domain.AttrDepartment, r.get("department"),
		),
	}
	if obs.Name == "" && obs.RawIdentifier == "" {
		return nil, skip(rec, "no traveller name or id")
	}

	ev := domain.Event{
		Type: domain.EventTravel,
		Attributes: attrs(
			domain.EvAttrDestination, r.get("destination"),
			domain.EvAttrReason, r.get("reason"),
			domain.EvAttrDepartment, r.get("department"),
			domain.EvAttrReference, r.get("reference"),
		),
		SourceID: rec.SourceID,
	}
	if dep, ok := r.date("departure"); ok {
		ev.OccurredAt = dep
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldOccurredAt)
	}
	if ret, ok := r.date("return"); ok {
		ev.OccurredTo = ret
	}
	amount, amountOK := r.amount("amount")
	if amountOK {
		ev.Amount = amount
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldAmount)
	}

	ev.ID = eventID(domain.EventTravel,
		subjectKey(&obs),
		formatDate(ev.OccurredAt),
		formatDate(ev.OccurredTo),
		ev.Attr(domain.EvAttrDestination),
		formatAmount(amount, amountOK),
		ev.Attr(domain.EvAttrReference),
	)
	obs.Events = []domain.Event{ev}
	return []domain.Observation{obs}, nil
}
