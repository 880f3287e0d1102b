package entity

// Article carries only what view counting needs.
type Article struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Views int64  `json:"views"`
}
