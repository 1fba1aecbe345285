package tools

import (
	"context"

	"github.com/cockroachdb/errors"

	"assistant/internal/storage"
)

// ErrNameRequired rejects a contact without any name part.
var ErrNameRequired = errors.New("At least first name or last name is required")

// ContactBook stores person contacts.
type ContactBook interface {
	CreatePerson(ctx context.Context, p storage.Person) (storage.PersonRecord, error)
}

// CreatePersonTool creates a person contact, creating the company on demand.
type CreatePersonTool struct {
	book ContactBook
}

func NewCreatePersonTool(book ContactBook) *CreatePersonTool {
	return &CreatePersonTool{book: book}
}

func (t *CreatePersonTool) Schema() Schema {
	return Schema{
		Name:        "create_person_contact",
		Description: "Create a new person contact in the database with their information including name, emails, phones, company, and other details",
		Params: []Param{
			{Name: "first_name", Description: "First name of the person", Kind: StringKind{}},
			{Name: "last_name", Description: "Last name of the person", Kind: StringKind{}},
			{Name: "_emails", Description: "Array of email addresses for the person", Kind: StringArrayKind{}},
			{Name: "_phones", Description: "Array of phone numbers for the person", Kind: StringArrayKind{}},
			{Name: "company_name", Description: "Name of the company the person works for (will be created if it doesn't exist)", Kind: StringKind{}},
			{Name: "job_title", Description: "Job title or position of the person", Kind: StringKind{}},
			{Name: "city", Description: "City where the person is located", Kind: StringKind{}},
			{Name: "state", Description: "State where the person is located", Kind: StringKind{}},
			{Name: "linkedin", Description: "LinkedIn profile URL", Kind: StringKind{}},
			{Name: "description", Description: "Additional notes or description about the person", Kind: StringKind{}},
		},
	}
}

func (t *CreatePersonTool) Execute(ctx context.Context, params Params) (any, error) {
	person := storage.Person{
		FirstName:   params.String("first_name"),
		LastName:    params.String("last_name"),
		Emails:      params.Strings("_emails"),
		Phones:      params.Strings("_phones"),
		CompanyName: params.String("company_name"),
		JobTitle:    params.String("job_title"),
		City:        params.String("city"),
		State:       params.String("state"),
		LinkedIn:    params.String("linkedin"),
		Description: params.String("description"),
	}
	if person.FirstName == "" && person.LastName == "" {
		return nil, ErrNameRequired
	}
	if t.book == nil {
		return nil, errors.New("contact book is not configured")
	}
	record, err := t.book.CreatePerson(ctx, person)
	if err != nil {
		return nil, errors.Wrap(err, "create person")
	}
	return record, nil
}
