package models

import "time"

// Assessment is the root of the compliance tree. Its ID is unique within a
// tenant; pillar, question and best-practice ids are unique only within
// their parent, so addressing a best practice always requires the full
// (assessment, pillar, question, bestPractice) path.
type Assessment struct {
	ID           string       `db:"id"            json:"id"`
	Organization string       `db:"organization"  json:"organization"`
	Name         string       `db:"name"          json:"name"`
	CreatedBy    string       `db:"created_by"    json:"createdBy"`
	CreatedAt    time.Time    `db:"created_at"    json:"createdAt"`
	RoleArn      string       `db:"role_arn"      json:"roleArn"`
	Regions      []string     `db:"regions"       json:"regions"`
	FinishedAt   *time.Time   `db:"finished_at"   json:"finishedAt,omitempty"`
	Error        *string      `db:"error"         json:"error,omitempty"`
	Pillars      []Pillar     `json:"pillars"`
	FileExports  []FileExport `json:"fileExports"`
}

type Pillar struct {
	ID        string     `db:"id"   json:"id"`
	Name      string     `db:"name" json:"name"`
	Questions []Question `json:"questions"`
}

type Question struct {
	ID            string         `db:"id"    json:"id"`
	Title         string         `db:"title" json:"title"`
	BestPractices []BestPractice `json:"bestPractices"`
}

// BestPractice carries the boolean review outcome. Results holds the ids of
// findings associated with this best practice; it is populated only by the
// document backend, where the association lives inline. The relational
// backend keeps the association in a join table instead.
type BestPractice struct {
	ID      string   `db:"id"      json:"id"`
	Name    string   `db:"name"    json:"name"`
	Risk    string   `db:"risk"    json:"risk"`
	Checked bool     `db:"checked" json:"checked"`
	Results []string `json:"results,omitempty"`
}

type FileExport struct {
	ID        string    `db:"id"         json:"id"`
	Format    string    `db:"format"     json:"format"`
	Location  string    `db:"location"   json:"location"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
