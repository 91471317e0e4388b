package keys

import (
	"fmt"
	"strings"
)

// Association links a finding to one best practice by its in-tree path.
type Association struct {
	PillarID       string
	QuestionID     string
	BestPracticeID string
}

// AssociationDecodeError reports a packed association string that does not
// match the "pillar#question#bestPractice" triple grammar. The backfill
// migration aborts on it rather than silently dropping associations.
type AssociationDecodeError struct {
	Raw string
}

func (e *AssociationDecodeError) Error() string {
	return fmt.Sprintf("malformed best-practice association %q", e.Raw)
}

// DecodeAssociations parses the packed form stored on a finding: zero or
// more pillar#question#bestPractice triples joined by commas, no whitespace.
// The empty string decodes to nil.
func DecodeAssociations(packed string) ([]Association, error) {
	if packed == "" {
		return nil, nil
	}
	parts := strings.Split(packed, ",")
	assocs := make([]Association, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(part, "#")
		if len(fields) != 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
			return nil, &AssociationDecodeError{Raw: part}
		}
		assocs = append(assocs, Association{
			PillarID:       fields[0],
			QuestionID:     fields[1],
			BestPracticeID: fields[2],
		})
	}
	return assocs, nil
}

// EncodeAssociations is the inverse of DecodeAssociations. Ids must not
// contain '#' or ','; the id-generation layer guarantees that invariant.
func EncodeAssociations(assocs []Association) string {
	if len(assocs) == 0 {
		return ""
	}
	parts := make([]string, len(assocs))
	for i, a := range assocs {
		parts[i] = a.PillarID + "#" + a.QuestionID + "#" + a.BestPracticeID
	}
	return strings.Join(parts, ",")
}
