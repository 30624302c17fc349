package models

// IssueCategory classifies a feedback submission.
type IssueCategory string

const (
	IssueFalsePositive IssueCategory = "false-positive"
	IssueFalseNegative IssueCategory = "false-negative"
	IssueSuggestion    IssueCategory = "suggestion"
	IssueFeedback      IssueCategory = "feedback"
	IssueOther         IssueCategory = "other"
)

// FeedbackRecord is a stored feedback entry as returned by the admin listing.
type FeedbackRecord struct {
	ID      FlexString `json:"id"`
	Message FlexString `json:"message"`
	Issue   FlexString `json:"issue"`
	URL     FlexString `json:"url"`
	Mail    FlexString `json:"mail"`
	Date    FlexString `json:"date"`
}

// FeedbackSubmission is the body of a public feedback report.
type FeedbackSubmission struct {
	URL     string        `json:"url" validate:"required,url"`
	Issue   IssueCategory `json:"issue" validate:"required,oneof=false-positive false-negative suggestion feedback other"`
	Message string        `json:"message" validate:"notblank"`
}
