package domain

// SamplePets is the catalogue seeded into an empty store. The ids match the
// rows inserted by the seed migration.
func SamplePets() []Record {
	return []Record{
		{FieldID: "fido", "name": "Fido", "category": "dog"},
		{FieldID: "tom", "name": "Tom", "category": "cat"},
		{FieldID: "bubbles", "name": "Bubbles", "category": "fish"},
		{FieldID: "polly", "name": "Polly", "category": "bird"},
	}
}
