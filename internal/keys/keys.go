// Package keys derives composite document-store keys, encodes opaque
// pagination cursors, and parses the packed best-practice association
// format. Everything here is a pure function; both storage backends and the
// backfill engine depend on these producing byte-identical output for
// identical input.
package keys

import "fmt"

const (
	assessmentPrefix = "ASSESSMENT#"
	findingSuffix    = "#FINDINGS"
)

// AssessmentKey returns the (partition, sort) key pair locating an
// assessment document inside its tenant partition.
func AssessmentKey(org, assessmentID string) (pk, sk string) {
	return org, assessmentPrefix + assessmentID
}

// AssessmentIDFromSort recovers the assessment id from a sort key produced
// by AssessmentKey. ok is false for sort keys of other entity kinds.
func AssessmentIDFromSort(sk string) (string, bool) {
	if len(sk) <= len(assessmentPrefix) || sk[:len(assessmentPrefix)] != assessmentPrefix {
		return "", false
	}
	return sk[len(assessmentPrefix):], true
}

// FindingPartition returns the partition key that groups every finding of
// one (organization, assessment) pair. The finding id itself is the sort key.
func FindingPartition(org, assessmentID string) string {
	return fmt.Sprintf("%s#%s%s", org, assessmentID, findingSuffix)
}

// BestPracticePath is the full composite identity of a best practice. Ids
// are unique only within their parent, so all four components are needed.
func BestPracticePath(assessmentID, pillarID, questionID, bestPracticeID string) string {
	return fmt.Sprintf("%s#%s#%s#%s", assessmentID, pillarID, questionID, bestPracticeID)
}
