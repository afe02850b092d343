package personalize

import "github.com/foxzi/msghub/internal/models"

// Variable describes a built-in placeholder
type Variable struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	value func(*models.Recipient) string
}

var builtins = []Variable{
	{"first_name", "Contact's first name", func(r *models.Recipient) string { return r.FirstName }},
	{"last_name", "Contact's last name", func(r *models.Recipient) string { return r.LastName }},
	{"full_name", "Contact's full name", func(r *models.Recipient) string { return r.FullName() }},
	{"email", "Contact's email address", func(r *models.Recipient) string { return r.Email }},
	{"phone", "Contact's phone number", func(r *models.Recipient) string { return r.Phone }},
	{"mobile", "Contact's mobile number", func(r *models.Recipient) string { return r.Mobile }},
	{"company", "Contact's company name", func(r *models.Recipient) string { return r.Company }},
	{"job_title", "Contact's job title", func(r *models.Recipient) string { return r.JobTitle }},
	{"department", "Contact's department", func(r *models.Recipient) string { return r.Department }},
	{"industry", "Contact's industry", func(r *models.Recipient) string { return r.Industry }},
	{"website", "Contact's website", func(r *models.Recipient) string { return r.Website }},
	{"address", "Contact's street address", func(r *models.Recipient) string { return r.Address }},
	{"city", "Contact's city", func(r *models.Recipient) string { return r.City }},
	{"state", "Contact's state or province", func(r *models.Recipient) string { return r.State }},
	{"country", "Contact's country", func(r *models.Recipient) string { return r.Country }},
	{"postal_code", "Contact's postal code", func(r *models.Recipient) string { return r.PostalCode }},
}

// AvailableVariables lists the built-in placeholders
func AvailableVariables() []Variable {
	out := make([]Variable, len(builtins))
	copy(out, builtins)
	return out
}
