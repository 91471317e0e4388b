package models

import "time"

// Finding is one piece of scan evidence, owned by exactly one
// (organization, assessment) pair. The ID is "<tool>#<sequence>"; downstream
// consumers parse the numeric suffix, so it must be preserved verbatim.
//
// BestPractices is the packed association string: zero or more
// "pillarId#questionId#bestPracticeId" triples joined by commas. It exists
// only in the document representation; after the backfill migration the
// relational join table is the source of truth.
type Finding struct {
	ID            string           `db:"id"             json:"id"`
	Hidden        bool             `db:"hidden"         json:"hidden"`
	Severity      string           `db:"severity"       json:"severity"`
	StatusCode    string           `db:"status_code"    json:"statusCode"`
	StatusDetail  string           `db:"status_detail"  json:"statusDetail"`
	RiskDetails   string           `db:"risk_details"   json:"riskDetails"`
	BestPractices string           `db:"best_practices" json:"bestPractices"`
	Remediation   Remediation      `json:"remediation"`
	Resources     []Resource       `json:"resources"`
	Comments      []FindingComment `json:"comments"`
}

type Remediation struct {
	Text string `db:"text" json:"text"`
	URL  string `db:"url"  json:"url"`
}

type Resource struct {
	ID     string `db:"id"     json:"id"`
	Type   string `db:"type"   json:"type"`
	Region string `db:"region" json:"region"`
}

// FindingComment is an append-only annotation on a finding.
type FindingComment struct {
	ID        string    `db:"id"         json:"id"`
	AuthorID  string    `db:"author_id"  json:"authorId"`
	Text      string    `db:"text"       json:"text"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
