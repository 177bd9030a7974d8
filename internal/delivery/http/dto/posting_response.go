package dto

import (
	"time"

	"jobpulse/internal/domain/posting"
)

type PostingResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Company         string  `json:"company"`
	CompanyURL      string  `json:"company_url,omitempty"`
	Location        string  `json:"location"`
	Description     string  `json:"description,omitempty"`
	PublicationDate string  `json:"publication_date,omitempty"`
	LastSeen        string  `json:"last_seen"`
	RetiredAt       *string `json:"retired_at"`
	Live            bool    `json:"live"`
	CreatedAt       string  `json:"created_at"`
}

func NewPostingResponse(p posting.Posting) PostingResponse {
	out := PostingResponse{
		ID:          p.NaturalID,
		Title:       p.Title,
		Company:     p.Company,
		CompanyURL:  p.CompanyURL,
		Location:    p.Location,
		Description: p.Description,
		LastSeen:    formatTime(p.LastSeen),
		Live:        p.Live(),
		CreatedAt:   formatTime(p.CreatedAt),
	}
	if p.PublicationDate != nil {
		out.PublicationDate = p.PublicationDate.UTC().Format("2006-01-02")
	}
	if p.RetiredAt != nil {
		s := formatTime(*p.RetiredAt)
		out.RetiredAt = &s
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
