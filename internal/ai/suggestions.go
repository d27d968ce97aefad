package ai

import "context"

// SuggestionProvider отдает советы по налоговым вычетам.
type SuggestionProvider interface {
	TaxSuggestions(ctx context.Context) ([]Suggestion, error)
}

// StaticSuggestions возвращает фиксированный набор советов.
type StaticSuggestions struct{}

// TaxSuggestions возвращает три фиксированных совета.
func (StaticSuggestions) TaxSuggestions(ctx context.Context) ([]Suggestion, error) {
	return []Suggestion{
		{
			Title:       "Retirement Savings Contributions",
			Description: "Consider contributing to a Private Retirement Scheme (PRS) or increasing your SSPN and EPF contributions to maximize your tax relief and secure your retirement savings.",
		},
		{
			Title:       "Medical and Health Expenses",
			Description: "Keep track of any medical expenses, such as medical examinations and vaccinations, as these can be deducted up to RM10,000, reducing your taxable income.",
		},
		{
			Title:       "Education and Training Expenses",
			Description: "Investing in education and training for yourself or your children can be beneficial, as these expenses are deductible up to RM7,000 for self or RM8,000 for SSPN, helping to lower your tax liability.",
		},
	}, nil
}
