package interchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ingest"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/taxonomy"
)

// importNamespace scopes derived external ids of entries that carry none.
var importNamespace = uuid.MustParse("6f1c2a8e-4d2b-5c7a-9e31-0b7d52c4a9f0")

// ImportOptions fill fields the document leaves out. CleanText flattens legacy
// markup; nil keeps text as is.
type ImportOptions struct {
	Dataset   string
	Author    string
	CleanText func(string) string
}

// Failure is one entry that could not be imported.
type Failure struct {
	Index      int     `json:"index"`
	Variant    Variant `json:"variant"`
	ExternalID string  `json:"external_id,omitempty"`
	Reason     string  `json:"reason"`
}

// Summary reports an import.
type Summary struct {
	Attempted int             `json:"attempted"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Fallbacks int             `json:"fallback_categories"`
	Variants  map[Variant]int `json:"variants"`
	Failures  []Failure       `json:"failures,omitempty"`
}

// Item is one decoded entry.
type Item struct {
	Index    int
	Variant  Variant
	Record   domain.CaseRecord
	Fallback bool
	Err      error
}

// Importer converts interchange entries into records and upserts them.
type Importer struct {
	reg    *taxonomy.Registry
	norm   *taxonomy.Normalizer
	cases  ports.CaseRepository
	opts   ImportOptions
	logger *slog.Logger
}

// NewImporter wires an Importer. cases may be nil for decode-only use.
func NewImporter(reg *taxonomy.Registry, cases ports.CaseRepository, opts ImportOptions, logger *slog.Logger) *Importer {
	if opts.CleanText == nil {
		opts.CleanText = strings.TrimSpace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		reg:    reg,
		norm:   taxonomy.NewNormalizer(reg),
		cases:  cases,
		opts:   opts,
		logger: logger.With("component", "import"),
	}
}

// Decode classifies and converts every entry without persisting anything.
func (im *Importer) Decode(raw []byte) ([]Item, error) {
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(entries))
	for i, obj := range entries {
		item := Item{Index: i, Variant: Classify(obj)}
		var res taxonomy.Resolution
		switch item.Variant {
		case VariantCurrent:
			item.Record, res, item.Err = im.fromCurrent(obj)
		case VariantLegacyTrap:
			item.Record, res, item.Err = im.fromTrap(obj)
		case VariantLegacyCounterfactual:
			item.Record, res, item.Err = im.fromCounterfactual(obj)
		default:
			item.Err = fmt.Errorf("unrecognized entry shape")
		}
		item.Fallback = res.Fallback
		items = append(items, item)
	}
	return items, nil
}

// Import decodes raw and upserts every convertible entry by (dataset, external id).
// Per-entry failures are counted; only an undecodable document is an error.
func (im *Importer) Import(ctx context.Context, raw []byte) (Summary, error) {
	items, err := im.Decode(raw)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Variants: map[Variant]int{}}
	for _, item := range items {
		sum.Attempted++
		sum.Variants[item.Variant]++
		if item.Err != nil {
			sum.fail(item, item.Err.Error())
			im.logger.Warn("import entry rejected", "index", item.Index, "variant", item.Variant, "error", item.Err)
			continue
		}
		if item.Fallback {
			sum.Fallbacks++
			im.logger.Info("legacy category mapped to fallback cell", "index", item.Index, "cell", item.Record.Cell.Key())
		}
		if im.cases == nil {
			sum.Succeeded++
			continue
		}
		_, created, err := im.cases.UpsertByExternalID(ctx, item.Record)
		if err != nil {
			sum.fail(item, fmt.Sprintf("store: %v", err))
			im.logger.Error("persist imported case", "index", item.Index, "external_id", item.Record.ExternalID, "error", err)
			continue
		}
		sum.Succeeded++
		if created {
			sum.Created++
		} else {
			sum.Updated++
		}
	}
	im.logger.Info("import finished", "attempted", sum.Attempted, "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func (s *Summary) fail(item Item, reason string) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{Index: item.Index, Variant: item.Variant, ExternalID: item.Record.ExternalID, Reason: reason})
}

func (im *Importer) fromCurrent(obj object) (domain.CaseRecord, taxonomy.Resolution, error) {
	tier, err := domain.ParseTier(obj.str("tier"))
	if err != nil {
		return domain.CaseRecord{}, taxonomy.Resolution{}, err
	}
	label := domain.NormalizeLabel(obj.str("label"))
	res, err := im.norm.Resolve(taxonomy.Coded(tier, obj.str("category_code"), obj.str("sub_code")), label)
	if err != nil {
		return domain.CaseRecord{}, res, err
	}

	status := domain.StatusPending
	if v := obj.str("validation_status"); v != "" {
		status = domain.ValidationStatus(strings.ToLower(v))
		if !status.Valid() {
			return domain.CaseRecord{}, res, fmt.Errorf("unknown validation_status %q", v)
		}
	}
	if status == domain.StatusApproved {
		if err := im.reg.CheckConsistency(res.Cell.Key(), label); err != nil {
			return domain.CaseRecord{}, res, fmt.Errorf("approved entry fails consistency: %w", err)
		}
	}

	rec := domain.CaseRecord{
		Scenario:        obj.str("scenario"),
		Claim:           obj.str("claim"),
		Variables:       ingest.DecodeVariables(obj),
		CausalStructure: obj.str("causal_structure"),
		KeyInsight:      obj.str("key_insight"),
		Rationale:       obj.str("rationale"),
		WiseAnswer:      obj.str("wise_answer"),
		HiddenQuestion:  obj.str("hidden_question"),
		Author:          obj.str("author"),
	}
	rec, err = im.finish(obj, VariantCurrent, rec, res.Cell, label)
	if err != nil {
		return rec, res, err
	}
	rec = rec.WithStatus(status)
	return rec, res, rec.Validate()
}

func (im *Importer) fromTrap(obj object) (domain.CaseRecord, taxonomy.Resolution, error) {
	tier := domain.TierL1
	if v := obj.str("tier", "level"); v != "" {
		t, err := domain.ParseTier(v)
		if err != nil {
			return domain.CaseRecord{}, taxonomy.Resolution{}, err
		}
		tier = t
	}
	label := domain.NormalizeLabel(obj.str("answer", "label"))
	res, err := im.norm.Resolve(taxonomy.Legacy(tier, obj.str("trap_type", "trap")), label)
	if err != nil {
		return domain.CaseRecord{}, res, err
	}
	clean := im.opts.CleanText
	rec := domain.CaseRecord{
		Scenario:       clean(obj.str("scenario", "question", "text")),
		Claim:          clean(obj.str("claim")),
		Variables:      ingest.DecodeVariables(obj),
		KeyInsight:     clean(obj.str("key_insight")),
		Rationale:      clean(obj.str("explanation", "rationale")),
		WiseAnswer:     clean(obj.str("wise_answer", "wise_refusal", "correct_reasoning")),
		HiddenQuestion: clean(obj.str("hidden_question")),
		Author:         obj.str("author", "annotator"),
	}
	rec, err = im.finish(obj, VariantLegacyTrap, rec, res.Cell, label)
	if err != nil {
		return rec, res, err
	}
	return rec, res, rec.Validate()
}

func (im *Importer) fromCounterfactual(obj object) (domain.CaseRecord, taxonomy.Resolution, error) {
	label := domain.NormalizeLabel(obj.str("ground_truth", "label"))
	res, err := im.norm.Resolve(taxonomy.Legacy(domain.TierL3, obj.str("category", "reasoning_type", "type")), label)
	if err != nil {
		return domain.CaseRecord{}, res, err
	}
	clean := im.opts.CleanText
	vars := ingest.DecodeVariables(obj)
	for _, inv := range obj.strings("invariants") {
		if inv = clean(inv); inv != "" {
			vars.Auxiliary = append(vars.Auxiliary, inv)
		}
	}
	rec := domain.CaseRecord{
		Scenario:        clean(obj.str("scenario", "context")),
		Claim:           clean(obj.str("counterfactual_claim", "claim")),
		Variables:       vars,
		CausalStructure: clean(obj.str("causal_structure")),
		Rationale:       clean(obj.str("justification", "explanation", "rationale")),
		WiseAnswer:      clean(obj.str("wise_answer")),
		HiddenQuestion:  clean(obj.str("hidden_question")),
		Author:          obj.str("author", "annotator"),
	}
	rec, err = im.finish(obj, VariantLegacyCounterfactual, rec, res.Cell, label)
	if err != nil {
		return rec, res, err
	}
	return rec, res, rec.Validate()
}

// finish fills the fields every variant shares and applies the resolution invariant.
func (im *Importer) finish(obj object, variant Variant, rec domain.CaseRecord, cell domain.Cell, label domain.Label) (domain.CaseRecord, error) {
	rec.Cell = cell
	rec.Label = label
	rec.Difficulty = domain.ParseDifficulty(obj.str("difficulty"))
	rec.ValidationStatus = domain.StatusPending
	rec.DatasetName = obj.str("dataset", "dataset_name")
	if rec.DatasetName == "" {
		rec.DatasetName = im.opts.Dataset
	}
	if rec.Author == "" {
		rec.Author = im.opts.Author
	}
	rec.ExternalID = obj.str("external_id", "id", "case_id")
	if rec.ExternalID == "" {
		seed := strings.Join([]string{string(variant), string(cell.Tier), string(label), rec.Scenario}, "\x00")
		rec.ExternalID = "import-" + uuid.NewSHA1(importNamespace, []byte(seed)).String()
	}
	if rec.Scenario == "" {
		return rec, fmt.Errorf("scenario is required")
	}

	if cell.Tier.IsAmbiguous(label) {
		res, present, err := ingest.CoerceResolutions(obj)
		if err != nil {
			return rec, fmt.Errorf("conditional_resolutions: %w", err)
		}
		if !present || !res.Any() {
			return rec, fmt.Errorf("conditional_resolutions required for %s", label)
		}
		for i, slot := range res {
			if slot != nil && variant != VariantCurrent {
				v := im.opts.CleanText(*slot)
				res[i] = &v
			}
		}
		rec.ConditionalResolutions = res
	}
	return rec, nil
}
