package validation

import (
	"fmt"
	"strings"

	"huddle/pkg/models"
	"huddle/pkg/registry"
)

// Rules controls payload validation. Required-field checking can be
// relaxed for deployments whose clients send partial payloads; size
// limits guard the store against runaway blobs.
type Rules struct {
	EnforceRequired bool
	MaxIDLen        int
	MaxDataFields   int
}

var rules = Rules{EnforceRequired: true, MaxIDLen: 128, MaxDataFields: 256}

func SetRules(r Rules) {
	if r.MaxIDLen == 0 {
		r.MaxIDLen = 128
	}
	if r.MaxDataFields == 0 {
		r.MaxDataFields = 256
	}
	rules = r
}

// ValidateEnvelope checks an inbound payload against the entity type
// declaration. Add operations must carry the declared required fields;
// update/vote/draft may be partial. The id requirement applies to every
// operation except bulk reorder, which is validated separately.
func ValidateEnvelope(t *registry.EntityType, op registry.Op, env models.Envelope) error {
	var errs []string
	if env.ID == "" {
		errs = append(errs, fmt.Sprintf("missing required %s", t.IDKey))
	} else if len(env.ID) > rules.MaxIDLen {
		errs = append(errs, fmt.Sprintf("%s exceeds %d chars", t.IDKey, rules.MaxIDLen))
	}
	if len(env.Data) > rules.MaxDataFields {
		errs = append(errs, fmt.Sprintf("data has %d fields; max %d", len(env.Data), rules.MaxDataFields))
	}
	if op == registry.OpAdd && rules.EnforceRequired {
		for _, f := range t.RequiredFields {
			if env.Data == nil {
				errs = append(errs, fmt.Sprintf("required field missing: %s", f))
				continue
			}
			if _, ok := env.Data[f]; !ok {
				errs = append(errs, fmt.Sprintf("required field missing: %s", f))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateReorder checks a bulk reorder payload: a non-empty ordered id
// list with no duplicates.
func ValidateReorder(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("reorder requires a non-empty ordered id list")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("reorder list contains an empty id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("reorder list contains duplicate id: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
