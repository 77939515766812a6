package types

// CreateBookRequest starts a session from a topic.
type CreateBookRequest struct {
	Topic string `json:"topic" validate:"required,max=500"`
}

// UpdateOutlineRequest replaces the reviewable outline of a session.
type UpdateOutlineRequest struct {
	Title          string        `json:"title" validate:"notblank"`
	TargetAudience string        `json:"target_audience" validate:"notblank"`
	Chapters       []ChapterStub `json:"chapters" validate:"required,min=1,dive"`
}

// TokenRequest asks for an API token for a named client.
type TokenRequest struct {
	Client string `json:"client" validate:"required,min=1,max=64"`
}

// Validate validates the CreateBookRequest using the validator.
func (r *CreateBookRequest) Validate() error {
	return newValidator().Struct(r)
}

// Validate validates the UpdateOutlineRequest using the validator.
func (r *UpdateOutlineRequest) Validate() error {
	return newValidator().Struct(r)
}

// Validate validates the TokenRequest using the validator.
func (r *TokenRequest) Validate() error {
	return newValidator().Struct(r)
}

// Outline converts the request into a trimmed Outline.
func (r *UpdateOutlineRequest) Outline() Outline {
	return Outline{Title: r.Title, TargetAudience: r.TargetAudience, Chapters: r.Chapters}.Trimmed()
}
