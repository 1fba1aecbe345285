package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/internal/storage"
)

type fakeBook struct {
	created []storage.Person
}

func (b *fakeBook) CreatePerson(_ context.Context, p storage.Person) (storage.PersonRecord, error) {
	b.created = append(b.created, p)
	return storage.PersonRecord{ID: "per_1", FirstName: p.FirstName, LastName: p.LastName, Emails: p.Emails}, nil
}

type panicTool struct{}

func (panicTool) Schema() Schema { return Schema{Name: "explode"} }

func (panicTool) Execute(context.Context, Params) (any, error) { panic("boom") }

type strictTool struct{}

func (strictTool) Schema() Schema {
	return Schema{
		Name: "sort_rows",
		Params: []Param{
			{Name: "column", Required: true, Kind: StringKind{}},
			{Name: "direction", Required: true, Kind: EnumKind{Values: []string{"asc", "desc"}}},
		},
	}
}

func (strictTool) Execute(_ context.Context, p Params) (any, error) {
	return map[string]string{"column": p.String("column"), "direction": p.String("direction")}, nil
}

func TestCreatePersonSchemaShape(t *testing.T) {
	schema := NewCreatePersonTool(nil).Schema().ToolSchema()

	assert.Equal(t, "create_person_contact", schema.Name)
	assert.Equal(t, "object", schema.InputSchema["type"])
	assert.Equal(t, []string{}, schema.InputSchema["required"])

	props := schema.InputSchema["properties"].(map[string]any)
	for _, name := range []string{"first_name", "last_name", "_emails", "_phones", "company_name", "job_title", "city", "state", "linkedin", "description"} {
		assert.Contains(t, props, name)
	}
	emails := props["_emails"].(map[string]any)
	assert.Equal(t, "array", emails["type"])
	assert.Equal(t, map[string]any{"type": "string"}, emails["items"])

	raw, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"input_schema"`)
}

func TestEnumSchema(t *testing.T) {
	schema := strictTool{}.Schema().ToolSchema()
	props := schema.InputSchema["properties"].(map[string]any)
	assert.Equal(t, []string{"asc", "desc"}, props["direction"].(map[string]any)["enum"])
	assert.Equal(t, []string{"column", "direction"}, schema.InputSchema["required"])
}

func TestRegistryUnknownFunction(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "delete_everything", json.RawMessage(`{}`))
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown function: delete_everything", res.Error)
	assert.Equal(t, "Unknown function: delete_everything", res.Content())
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry(strictTool{}, NewCreatePersonTool(nil), panicTool{})
	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "create_person_contact", defs[0].Name)
	assert.Equal(t, "explode", defs[1].Name)
	assert.Equal(t, "sort_rows", defs[2].Name)
	assert.True(t, r.Has("sort_rows"))
	assert.False(t, r.Has("nope"))
}

func TestRegistryValidatesArguments(t *testing.T) {
	r := NewRegistry(strictTool{})
	ctx := context.Background()

	res := r.Execute(ctx, "sort_rows", json.RawMessage(`{"column":"name"}`))
	assert.False(t, res.Success)
	assert.Equal(t, "missing required parameters: direction", res.Error)

	res = r.Execute(ctx, "sort_rows", json.RawMessage(`{"column":"name","direction":"sideways"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `"direction"`)

	res = r.Execute(ctx, "sort_rows", json.RawMessage(`not json`))
	assert.False(t, res.Success)

	res = r.Execute(ctx, "sort_rows", json.RawMessage(`{"column":"name","direction":"desc"}`))
	require.True(t, res.Success)
	assert.JSONEq(t, `{"column":"name","direction":"desc"}`, res.Content())
}

func TestRegistryRecoversPanics(t *testing.T) {
	r := NewRegistry(panicTool{})
	res := r.Execute(context.Background(), "explode", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestCreatePersonRequiresAName(t *testing.T) {
	book := &fakeBook{}
	r := NewRegistry(NewCreatePersonTool(book))

	res := r.Execute(context.Background(), "create_person_contact", json.RawMessage(`{"company_name":"Acme"}`))
	assert.False(t, res.Success)
	assert.Equal(t, "At least first name or last name is required", res.Error)
	assert.Empty(t, book.created)
}

func TestCreatePersonMapsParams(t *testing.T) {
	book := &fakeBook{}
	r := NewRegistry(NewCreatePersonTool(book))

	res := r.Execute(context.Background(), "create_person_contact", json.RawMessage(`{
		"first_name": " Jane ",
		"_emails": ["jane@acme.test", ""],
		"_phones": "+1 555 0100",
		"city": "Austin"
	}`))
	require.True(t, res.Success, res.Error)
	require.Len(t, book.created, 1)
	p := book.created[0]
	assert.Equal(t, "Jane", p.FirstName)
	assert.Equal(t, []string{"jane@acme.test"}, p.Emails)
	assert.Equal(t, []string{"+1 555 0100"}, p.Phones)
	assert.Equal(t, "Austin", p.City)

	rec, ok := res.Data.(storage.PersonRecord)
	require.True(t, ok)
	assert.Equal(t, "per_1", rec.ID)
}

func TestCreatePersonAgainstSQLite(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "contacts.db"))
	require.NoError(t, err)
	defer store.Close()

	r := NewRegistry(NewCreatePersonTool(store))
	res := r.Execute(context.Background(), "create_person_contact",
		json.RawMessage(`{"first_name":"Ada","last_name":"Lovelace","company_name":"Analytical Engines"}`))
	require.True(t, res.Success, res.Error)

	people, err := store.ListPeople(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Analytical Engines", people[0].CompanyName)
}

func TestValidateErrorsCarryStack(t *testing.T) {
	schema := strictTool{}.Schema()

	err := schema.validate(Params{"column": "name"})
	require.Error(t, err)
	assert.Equal(t, "missing required parameters: direction", err.Error())
	file, _, _, ok := errors.GetOneLineSource(err)
	require.True(t, ok)
	assert.Contains(t, file, "params.go")

	err = schema.validate(Params{"column": "name", "direction": "up"})
	assert.EqualError(t, err, `parameter "direction" has an invalid value`)
	_, _, _, ok = errors.GetOneLineSource(err)
	assert.True(t, ok)
}
