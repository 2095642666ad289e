package memory

// Customer groups the notes remembered about one person.
type Customer struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Notes []string `json:"notes"`
}

type jsonLineItem struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name,omitempty"`
	Notes []string `json:"notes,omitempty"`
}

type AddNotesRequest struct {
	CustomerID string   `json:"customerId"`
	Name       string   `json:"name,omitempty"`
	Notes      []string `json:"notes"`
}

type DeleteNotesRequest struct {
	CustomerID string   `json:"customerId"`
	Notes      []string `json:"notes"`
}
