package domain

import "time"

// Client owns one or more books.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Book is a ledger belonging to a client. Training data is scoped per book.
type Book struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClientID string `json:"clientId"`
}

// Industry selects the industry-specific rule tables.
type Industry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ColumnMapping maps target fields to header names of an input file.
type ColumnMapping map[TargetField]string

// ColumnMappingTemplate is a reusable, named column mapping.
type ColumnMappingTemplate struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Mapping     ColumnMapping `json:"mapping"`
	IsTraining  bool          `json:"isTrainingData"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastUsed    *time.Time    `json:"lastUsed,omitempty"`
	UsageCount  int           `json:"usageCount"`
}

// ClientConfigTemplate bundles the context choices a user repeats across uploads.
type ClientConfigTemplate struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	ClientID          string     `json:"clientId"`
	BookID            string     `json:"bookId"`
	IndustryID        string     `json:"industryId,omitempty"`
	MappingTemplateID string     `json:"mappingTemplateId,omitempty"`
	UseAI             bool       `json:"useAI"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastUsed          *time.Time `json:"lastUsed,omitempty"`
	UsageCount        int        `json:"usageCount"`
}
