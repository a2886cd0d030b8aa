package normalisers

import (
	"github.com/custodia-labs/sentinela/internal/core/domain"
	"github.com/custodia-labs/sentinela/internal/core/ports/driven"
)

// Ensure the electoral mappers implement the interface.
var (
	_ driven.SchemaMapper = (*Donations)(nil)
	_ driven.SchemaMapper = (*Candidates)(nil)
	_ driven.SchemaMapper = (*CandidateAssets)(nil)
)

// candidateNamespace prefixes the electoral authority's per-election
// candidate surrogate, shared by every electoral dataset.
const candidateNamespace = "tse"

// candidateSurrogate builds the shared surrogate from election year and
// candidate sequence number.
func candidateSurrogate(year, seq string) string {
	if seq == "" || year == "" {
		return ""
	}
	return candidateNamespace + ":" + year + ":" + seq
}

// ==================== Donations ====================

var donationsAliases = aliasTable{
	"donor_id":       {"nr_cpf_cnpj_doador", "cpf_cnpj_doador", "cpf_cnpj_do_doador", "nr_cpf_cnpj_doador_originario"},
	"donor_name":     {"nm_doador", "nome_doador", "nm_doador_rfb", "nome_do_doador"},
	"candidate_id":   {"nr_cpf_candidato", "cpf_candidato"},
	"candidate_name": {"nm_candidato", "nome_candidato"},
	"candidate_seq":  {"sq_candidato"},
	"office":         {"ds_cargo", "cargo"},
	"amount":         {"vr_receita", "valor_receita", "valor", "vr_doacao"},
	"date":           {"dt_receita", "data_receita", "data_doacao"},
	"year":           {"ano_eleicao"},
	"reference":      {"sq_receita", "nr_recibo_doacao", "nr_documento_doacao"},
	"description":    {"ds_receita", "ds_origem_receita", "ds_especie_receita"},
}

// Donations maps electoral donations. The donor is the subject; the candidate
// is a DONATED_TO counterpart bound to the donation event.
type Donations struct{}

// NewDonations creates the donations mapper.
func NewDonations() *Donations {
	return &Donations{}
}

// Dataset returns the dataset name.
func (m *Donations) Dataset() string {
	return DatasetDonations
}

// Aliases returns the accepted column keys per canonical field.
func (m *Donations) Aliases() map[string][]string {
	return donationsAliases.clone()
}

// Map produces the donor observation with one donation event.
func (m *Donations) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, donationsAliases)

	donorID := r.get("donor_id")
	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          idKind(donorID, domain.EntityPerson),
		RawIdentifier: donorID,
		Name:          r.get("donor_name"),
		Attributes:    map[string]string{},
	}
	if obs.Name == "" && obs.RawIdentifier == "" {
		return nil, skip(rec, "no donor name or id")
	}

	year := r.get("year")
	candidate := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          domain.EntityPerson,
		RawIdentifier: r.get("candidate_id"),
		SequentialID:  candidateSurrogate(year, r.get("candidate_seq")),
		Name:          r.get("candidate_name"),
		Attributes:    attrs(domain.AttrOffice, r.get("office")),
	}

	ev := domain.Event{
		Type: domain.EventDonation,
		Attributes: attrs(
			domain.EvAttrCandidate, candidate.Name,
			domain.EvAttrOffice, r.get("office"),
			domain.EvAttrElection, year,
			domain.EvAttrReference, r.get("reference"),
			domain.EvAttrDescription, r.get("description"),
		),
		SourceID: rec.SourceID,
	}
	if d, ok := r.date("date"); ok {
		ev.OccurredAt = d
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldOccurredAt)
	}
	amount, amountOK := r.amount("amount")
	if amountOK {
		ev.Amount = amount
	} else {
		ev.Unnormalized = addFlag(ev.Unnormalized, domain.FieldAmount)
	}

	ev.ID = eventID(domain.EventDonation,
		subjectKey(&obs),
		subjectKey(&candidate),
		formatDate(ev.OccurredAt),
		formatAmount(amount, amountOK),
		ev.Attr(domain.EvAttrReference),
	)
	obs.Events = []domain.Event{ev}

	if candidate.Name != "" || candidate.RawIdentifier != "" || candidate.SequentialID != "" {
		obs.Related = append(obs.Related, domain.Relation{
			Type:        domain.RelDonatedTo,
			Counterpart: candidate,
			Attributes:  attrs(domain.EvAttrElection, year),
			BindEvents:  true,
		})
	}
	return []domain.Observation{obs}, nil
}

// ==================== Candidates ====================

var candidatesAliases = aliasTable{
	"id":         {"nr_cpf_candidato", "cpf_candidato", "cpf"},
	"name":       {"nm_candidato", "nome_candidato", "nome"},
	"ballot":     {"nm_urna_candidato"},
	"seq":        {"sq_candidato"},
	"year":       {"ano_eleicao"},
	"birth_date": {"dt_nascimento", "data_nascimento"},
	"office":     {"ds_cargo", "cargo"},
	"party":      {"sg_partido", "partido"},
	"state":      {"sg_uf", "uf"},
}

// Candidates maps candidate registrations. They link the per-election
// surrogate to the candidate's national id.
type Candidates struct{}

// NewCandidates creates the candidates mapper.
func NewCandidates() *Candidates {
	return &Candidates{}
}

// Dataset returns the dataset name.
func (m *Candidates) Dataset() string {
	return DatasetCandidates
}

// Aliases returns the accepted column keys per canonical field.
func (m *Candidates) Aliases() map[string][]string {
	return candidatesAliases.clone()
}

// Map produces one person observation keyed by national id and surrogate.
func (m *Candidates) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, candidatesAliases)

	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          domain.EntityPerson,
		RawIdentifier: r.get("id"),
		SequentialID:  candidateSurrogate(r.get("year"), r.get("seq")),
		Name:          r.get("name"),
		Attributes: attrs(
			domain.AttrOffice, r.get("office"),
			domain.AttrParty, r.get("party"),
			domain.AttrState, r.get("state"),
		),
	}
	if obs.Name == "" {
		obs.Name = r.get("ballot")
	}
	if obs.Name == "" && obs.RawIdentifier == "" && obs.SequentialID == "" {
		return nil, skip(rec, "no candidate name, id or sequence")
	}
	if birth, ok := r.date("birth_date"); ok {
		obs.Disambiguator = formatDate(birth)
		obs.Attributes[domain.AttrBirthDate] = obs.Disambiguator
	} else if raw := r.get("birth_date"); raw != "" {
		obs.Unnormalized = addFlag(obs.Unnormalized, domain.AttrBirthDate)
	}
	return []domain.Observation{obs}, nil
}

// ==================== Candidate assets ====================

var candidateAssetsAliases = aliasTable{
	"seq":         {"sq_candidato"},
	"id":          {"nr_cpf_candidato", "cpf_candidato"},
	"name":        {"nm_candidato", "nome_candidato"},
	"year":        {"ano_eleicao"},
	"value":       {"vr_bem_candidato", "valor_bem", "vr_bem", "valor"},
	"ordinal":     {"nr_ordem_bem_candidato", "nr_ordem_candidato", "nr_ordem"},
	"description": {"ds_bem_candidato", "ds_tipo_bem_candidato"},
	"office":      {"ds_cargo", "cargo"},
}

// CandidateAssets maps declared-asset rows. The electoral authority
// publishes one row per asset, so each row is a part of the candidate's
// snapshot for the election year.
type CandidateAssets struct{}

// NewCandidateAssets creates the candidate assets mapper.
func NewCandidateAssets() *CandidateAssets {
	return &CandidateAssets{}
}

// Dataset returns the dataset name.
func (m *CandidateAssets) Dataset() string {
	return DatasetCandidateAssets
}

// Aliases returns the accepted column keys per canonical field.
func (m *CandidateAssets) Aliases() map[string][]string {
	return candidateAssetsAliases.clone()
}

// Map produces one person observation carrying one snapshot part.
func (m *CandidateAssets) Map(rec domain.RawRecord) ([]domain.Observation, error) {
	r := newRow(rec, candidateAssetsAliases)

	year := r.get("year")
	obs := domain.Observation{
		SourceID:      rec.SourceID,
		Kind:          domain.EntityPerson,
		RawIdentifier: r.get("id"),
		SequentialID:  candidateSurrogate(year, r.get("seq")),
		Name:          r.get("name"),
		Attributes:    attrs(domain.AttrOffice, r.get("office")),
	}
	if obs.RawIdentifier == "" && obs.SequentialID == "" {
		return nil, skip(rec, "no candidate id or sequence")
	}
	if year == "" {
		return nil, skip(rec, "no election year")
	}

	value, ok := r.amount("value")
	if !ok {
		obs.Unnormalized = addFlag(obs.Unnormalized, domain.FieldAmount)
		return []domain.Observation{obs}, nil
	}
	part := r.get("ordinal")
	if part == "" {
		part = eventID("asset", r.get("description"), formatAmount(value, true))[:16]
	}
	obs.Snapshot = &domain.ObservedSnapshot{Period: year, Value: value, Part: part}
	return []domain.Observation{obs}, nil
}
