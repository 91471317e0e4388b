package cache

import "fmt"

func AssessmentKey(org, assessmentID string) string {
	return fmt.Sprintf("assessment:%s:%s", org, assessmentID)
}

func OrganizationKey(domain string) string {
	return fmt.Sprintf("organization:%s", domain)
}
