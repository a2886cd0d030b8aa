package normalisers

import (
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure Payroll implements the interface.
var _ driven.SchemaMapper = (*Payroll)(nil)

var payrollAliases = aliasTable{
	"name":         {"nome", "nome_servidor", "servidor_nome", "servidor", "nome_do_servidor"},
	"id":           {"cpf", "cpf_servidor", "servidor_cpf"},
	"registration": {"matricula", "matricula_servidor", "id_servidor_portal"},
	"birth_date":   {"data_nascimento", "dt_nascimento"},
	"role":         {"cargo", "funcao", "cargo_funcao", "descricao_cargo"},
	"department":   {"lotacao", "orgao", "secretaria", "orgao_lotacao", "unidade"},
	"hours":        {"carga_horaria", "jornada", "jornada_de_trabalho"},
	"contract":     {"vinculo", "tipo_vinculo", "regime", "situacao_vinculo"},
	"period":       {"competencia", "mes_ano", "mes_referencia", "referencia", "periodo"},
	"year":         {"ano"},
	"month":        {"mes"},
	"gross":        {"remuneracao_bruta", "salario_bruto", "bruto", "valor_bruto", "total_bruto", "remuneracao"},
	"net":          {"salario_liquido", "remuneracao_liquida", "liquido", "valor_liquido"},
}

// Payroll maps monthly pay rows of public employees.
type Payroll struct{}

// NewPayroll creates the payroll mapper.
func NewPayroll() *Payroll {
	return &Payroll{}
}

// Dataset returns the dataset name.
func (m *Payroll) Dataset() string {
	return DatasetPayroll
}

// Aliases returns the accepted column keys per canonical field.
func (m *Payroll) Aliases() map[string][]string {
	return payrollAliases.clone()
}

// Map produces one person observation carrying one payroll event.
func (m *Payroll) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, payrollAliases)

	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          domain.EntityPerson,
		RawIdentifier: r.get("id"),
		Name:          r.get("name"),
		Disambiguator: r.get("birth_date"),
		Attributes: attrs(
			domain.AttrRole, r.get("role"),
			domain.AttrDepartment, r.get("department"),
		),
	}
	if reg := r.get("registration"); reg != "" {
		obs.SequentialID = rec.SourceID + ":" + reg
	}
	if obs.Name == "" && obs.RawIdentifier == "" && obs.SequentialID == "" {
		return nil, skip(rec, "no employee name, id or registration")
	}
	if d, ok := parseDate(obs.Disambiguator); ok {
		obs.Disambiguator = formatDate(d)
	}

	ev := domain.Event{
		Type: domain.EventPayroll,
		Attributes: attrs(
			domain.EvAttrRole, r.get("role"),
			domain.EvAttrWeeklyHours, digits(r.get("hours")),
			domain.EvAttrContractType, r.get("contract"),
			domain.EvAttrDepartment, r.get("department"),
		),
		SourceID: rec.SourceID,
	}

	period, ok := r.period("period")
	if !ok {
		period, ok = yearMonth(r.get("year"), r.get("month"))
	}
	if ok {
		ev.OccurredAt = period
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldOccurredAt)
	}

	gross, grossOK := r.amount("gross")
	if grossOK {
		ev.Amount = gross
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldAmount)
	}
	if net, ok := r.amount("net"); ok {
		ev.Attributes[domain.EvAttrNet] = formatAmount(net, true)
	}

	ev.ID = eventID(domain.EventPayroll,
		subjectKey(&obs),
		formatDate(ev.OccurredAt),
		formatAmount(gross, grossOK),
		ev.Attr(domain.EvAttrRole),
		ev.Attr(domain.EvAttrDepartment),
	)
	obs.Events = []domain.Event{ev}
	return []domain.Observation{obs}, nil
}
